// Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
//
// WSO2 LLC. licenses this file to you under the Apache License,
// Version 2.0 (the "License"); you may not use this file except
// in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied. See the License for the
// specific language governing permissions and limitations
// under the License.

package core

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// ClientIDHeader lets a local consumer pin its identity across reconnects.
const ClientIDHeader = "X-Client-ID"

// GenerateClientID names a local consumer of the feed entrypoints. It prefers
// the explicit header, then a short hash of the remote host.
func GenerateClientID(r *http.Request) string {
	if clientID := r.Header.Get(ClientIDHeader); clientID != "" {
		return clientID
	}

	remoteAddr := r.RemoteAddr
	if remoteAddr == "" {
		return uuid.NewString()
	}

	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}

	if strings.Contains(host, ":") {
		if ip := net.ParseIP(host); ip != nil {
			host = ip.String()
		}
	}

	hash := sha256.Sum256([]byte(host))
	return hex.EncodeToString(hash[:])[:12]
}

// NewID returns a fresh random identifier for notifications and alerts.
func NewID() string {
	return uuid.NewString()
}

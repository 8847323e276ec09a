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

package routing

import (
	"encoding/json"
	"sync"

	"github.com/redstarh/stocknews/newsfeed/pkg/core"
)

// Frame is one logged inbound message together with its raw data member.
type Frame struct {
	Message core.InboundMessage
	RawData json.RawMessage
}

// HandlerFunc runs for a message type after the message reached the log.
// It reports whether it produced a notification.
type HandlerFunc func(f Frame) bool

// Table maps message types to their handlers.
type Table struct {
	handlers sync.Map
}

func NewTable() *Table {
	return &Table{}
}

func (t *Table) Add(msgType string, h HandlerFunc) {
	t.handlers.Store(msgType, h)
}

func (t *Table) Lookup(msgType string) (HandlerFunc, bool) {
	v, ok := t.handlers.Load(msgType)
	if !ok {
		return nil, false
	}
	return v.(HandlerFunc), true
}

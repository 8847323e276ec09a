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

package logging

import (
	"sync"

	"github.com/redstarh/stocknews/newsfeed/pkg/core"
)

// MessageLog is the unbounded log of every routed non-ping message, kept in
// arrival order. Retention is left to whoever consumes it.
type MessageLog struct {
	mu      sync.RWMutex
	entries []core.InboundMessage
}

func NewMessageLog() *MessageLog {
	return &MessageLog{}
}

func (l *MessageLog) Append(msg core.InboundMessage) {
	l.mu.Lock()
	l.entries = append(l.entries, msg)
	l.mu.Unlock()
}

func (l *MessageLog) Messages() []core.InboundMessage {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]core.InboundMessage, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *MessageLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

func (l *MessageLog) Clear() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
}

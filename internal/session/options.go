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

package session

import (
	"log/slog"

	"github.com/benbjohnson/clock"

	"github.com/redstarh/stocknews/newsfeed/pkg/core"
)

type Option func(*Manager)

// WithClock replaces the clock used for reconnect timers.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) {
		if c != nil {
			m.clock = c
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithReconnectPolicy overrides the fixed 3000 ms reconnect delay.
func WithReconnectPolicy(p ReconnectPolicy) Option {
	return func(m *Manager) {
		if p != nil {
			m.policy = p
		}
	}
}

// WithStateListener registers fn to observe state transitions. Transitions
// are delivered in order, outside the manager lock.
func WithStateListener(fn func(core.StateChange)) Option {
	return func(m *Manager) {
		m.onState = fn
	}
}

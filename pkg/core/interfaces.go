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

import "context"

// Replier sends a frame back over the connection a frame arrived on.
type Replier interface {
	WriteMessage(data []byte) error
}

// Conn is one open transport session.
type Conn interface {
	Replier
	ReadMessage() ([]byte, error)
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Feed is the consumer-facing read and write API of the notification core.
type Feed interface {
	State() ConnectionState
	Messages() []InboundMessage
	Notifications() []Notification
	UnreadCount() int
	Snapshot() Snapshot
	Subscribe() (<-chan Snapshot, func())

	Connect(ctx context.Context) error
	Disconnect()
	MarkAsRead(id string)
	MarkAllAsRead()
	ClearNotifications()
	ClearMessages()
}

type Entrypoint interface {
	Name() string
	Type() string
	Start(ctx context.Context, feed Feed) error
	Stop(ctx context.Context) error
}

// Sink receives breaking news alerts forwarded out of the feed.
type Sink interface {
	Name() string
	Type() string
	Connect(ctx context.Context) error
	Publish(ctx context.Context, alert Alert) error
	Disconnect(ctx context.Context) error
}

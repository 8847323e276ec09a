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

// Package feedtest provides an in-memory core.Feed for entrypoint tests.
package feedtest

import (
	"context"
	"sync"

	"github.com/redstarh/stocknews/newsfeed/pkg/core"
)

type Feed struct {
	mu            sync.Mutex
	state         core.ConnectionState
	messages      []core.InboundMessage
	notifications []core.Notification
	version       uint64
	subs          map[int]chan core.Snapshot
	nextSub       int
	calls         []string
	connectErr    error
}

var _ core.Feed = (*Feed)(nil)

func New(notifications ...core.Notification) *Feed {
	return &Feed{
		state:         core.StateConnected,
		notifications: notifications,
		subs:          make(map[int]chan core.Snapshot),
	}
}

// Calls lists the write operations invoked so far, with their argument
// when they take one ("mark_read:n1").
func (f *Feed) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *Feed) SetConnectError(err error) {
	f.mu.Lock()
	f.connectErr = err
	f.mu.Unlock()
}

func (f *Feed) AddMessage(m core.InboundMessage) {
	f.mu.Lock()
	f.messages = append(f.messages, m)
	f.mu.Unlock()
	f.publish()
}

func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *Feed) State() core.ConnectionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Feed) Messages() []core.InboundMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.InboundMessage(nil), f.messages...)
}

func (f *Feed) Notifications() []core.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.Notification(nil), f.notifications...)
}

func (f *Feed) UnreadCount() int {
	return f.Snapshot().UnreadCount
}

func (f *Feed) Snapshot() core.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

func (f *Feed) snapshotLocked() core.Snapshot {
	unread := 0
	for _, n := range f.notifications {
		if !n.Read {
			unread++
		}
	}
	return core.Snapshot{
		State:         f.state,
		Notifications: append([]core.Notification(nil), f.notifications...),
		UnreadCount:   unread,
		MessageCount:  len(f.messages),
		Version:       f.version,
	}
}

func (f *Feed) Subscribe() (<-chan core.Snapshot, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan core.Snapshot, 1)
	id := f.nextSub
	f.nextSub++
	f.subs[id] = ch
	ch <- f.snapshotLocked()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
		})
	}
}

func (f *Feed) Connect(context.Context) error {
	f.mu.Lock()
	f.calls = append(f.calls, "connect")
	err := f.connectErr
	if err == nil {
		f.state = core.StateConnected
	}
	f.mu.Unlock()
	f.publish()
	return err
}

func (f *Feed) Disconnect() {
	f.mutate("disconnect", func() { f.state = core.StateDisconnected })
}

func (f *Feed) MarkAsRead(id string) {
	f.mutate("mark_read:"+id, func() {
		for i := range f.notifications {
			if f.notifications[i].ID == id {
				f.notifications[i].Read = true
			}
		}
	})
}

func (f *Feed) MarkAllAsRead() {
	f.mutate("mark_all_read", func() {
		for i := range f.notifications {
			f.notifications[i].Read = true
		}
	})
}

func (f *Feed) ClearNotifications() {
	f.mutate("clear_notifications", func() { f.notifications = nil })
}

func (f *Feed) ClearMessages() {
	f.mutate("clear_messages", func() { f.messages = nil })
}

func (f *Feed) mutate(call string, fn func()) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	fn()
	f.mu.Unlock()
	f.publish()
}

func (f *Feed) publish() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.version++
	snap := f.snapshotLocked()
	for _, ch := range f.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

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

// Package notify holds the user-facing breaking news feed: a fixed-capacity
// ring of notifications, newest first, with read/unread tracking.
package notify

import (
	"sync"
	"time"

	"github.com/redstarh/stocknews/newsfeed/pkg/core"
)

const DefaultCapacity = 10

type Option func(*Store)

// WithIDGenerator replaces the random id source used by Add and by Insert
// for notifications without an id.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// Store is a ring buffer of notifications. Writing into a full ring
// overwrites the oldest slot, so the capacity bound cannot be exceeded.
type Store struct {
	mu       sync.RWMutex
	slots    []core.Notification
	index    int // next write position
	size     int
	capacity int
	newID    func() string
	issued   map[string]struct{} // every id ever held, evicted and cleared ones included
}

func NewStore(capacity int, opts ...Option) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s := &Store{
		slots:    make([]core.Notification, capacity),
		capacity: capacity,
		newID:    core.NewID,
		issued:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add records msg as a new unread notification created at `at`.
func (s *Store) Add(msg core.InboundMessage, at time.Time) core.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := core.Notification{
		ID:        s.uniqueIDLocked(),
		Message:   msg,
		Timestamp: at.UnixMilli(),
	}
	s.appendLocked(n)
	return n
}

// Insert places n at the head of the feed. It reports false, and leaves the
// store untouched, when the id was already used at any point in the store's
// lifetime, even if that notification has since been evicted or cleared.
func (s *Store) Insert(n core.Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ID == "" {
		n.ID = s.uniqueIDLocked()
	} else if s.used(n.ID) {
		return false
	}
	s.appendLocked(n)
	return true
}

func (s *Store) MarkAsRead(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pos := s.positionLocked(id); pos >= 0 {
		s.slots[pos].Read = true
	}
}

func (s *Store) MarkAllAsRead() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.eachLocked(func(pos int) bool {
		s.slots[pos].Read = true
		return true
	})
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.slots)
	s.index = 0
	s.size = 0
}

// UnreadCount is computed from the slots on every call.
func (s *Store) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	unread := 0
	s.eachLocked(func(pos int) bool {
		if !s.slots[pos].Read {
			unread++
		}
		return true
	})
	return unread
}

// Notifications returns a copy of the feed, newest first.
func (s *Store) Notifications() []core.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.Notification, 0, s.size)
	s.eachLocked(func(pos int) bool {
		out = append(out, s.slots[pos])
		return true
	})
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

func (s *Store) Cap() int { return s.capacity }

func (s *Store) appendLocked(n core.Notification) {
	s.issued[n.ID] = struct{}{}
	s.slots[s.index] = n
	s.index = (s.index + 1) % s.capacity
	if s.size < s.capacity {
		s.size++
	}
}

// eachLocked walks live slots from newest to oldest until fn returns false.
func (s *Store) eachLocked(fn func(pos int) bool) {
	for i := 1; i <= s.size; i++ {
		pos := (s.index - i + s.capacity) % s.capacity
		if !fn(pos) {
			return
		}
	}
}

func (s *Store) positionLocked(id string) int {
	found := -1
	s.eachLocked(func(pos int) bool {
		if s.slots[pos].ID == id {
			found = pos
			return false
		}
		return true
	})
	return found
}

func (s *Store) used(id string) bool {
	_, ok := s.issued[id]
	return ok
}

func (s *Store) uniqueIDLocked() string {
	for range 3 {
		if id := s.newID(); !s.used(id) {
			return id
		}
	}
	for {
		if id := core.NewID(); !s.used(id) {
			return id
		}
	}
}

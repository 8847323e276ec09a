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

// Package feed assembles the connection manager, message router,
// notification store and message log into the consumer-facing feed.
package feed

import (
	"context"
	"log/slog"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/redstarh/stocknews/newsfeed/internal/logging"
	"github.com/redstarh/stocknews/newsfeed/internal/notify"
	"github.com/redstarh/stocknews/newsfeed/internal/routing"
	"github.com/redstarh/stocknews/newsfeed/internal/session"
	"github.com/redstarh/stocknews/newsfeed/pkg/core"
)

type options struct {
	capacity        int
	clock           clock.Clock
	logger          *slog.Logger
	policy          session.ReconnectPolicy
	onBreakingNews  func(core.BreakingNewsPayload)
	callbackRecover bool
	idGen           func() string
}

type Option func(*options)

// WithCapacity bounds the notification feed. Defaults to notify.DefaultCapacity.
func WithCapacity(n int) Option {
	return func(o *options) { o.capacity = n }
}

func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithReconnectPolicy(p session.ReconnectPolicy) Option {
	return func(o *options) { o.policy = p }
}

func WithBreakingNewsHandler(fn func(core.BreakingNewsPayload)) Option {
	return func(o *options) { o.onBreakingNews = fn }
}

func WithCallbackRecovery(enabled bool) Option {
	return func(o *options) { o.callbackRecover = enabled }
}

func WithIDGenerator(gen func() string) Option {
	return func(o *options) { o.idGen = gen }
}

type Feed struct {
	store   *notify.Store
	log     *logging.MessageLog
	router  *routing.Router
	manager *session.Manager
	logger  *slog.Logger

	mu      sync.Mutex
	subs    map[uint64]chan core.Snapshot
	nextSub uint64
	version uint64
	closed  bool
}

var _ core.Feed = (*Feed)(nil)

func New(url string, dialer core.Dialer, opts ...Option) *Feed {
	o := options{
		capacity:        notify.DefaultCapacity,
		clock:           clock.New(),
		logger:          logging.Discard(),
		policy:          session.FixedDelay(session.DefaultReconnectDelay),
		callbackRecover: true,
	}
	for _, opt := range opts {
		opt(&o)
	}

	f := &Feed{
		log:    logging.NewMessageLog(),
		logger: o.logger,
		subs:   make(map[uint64]chan core.Snapshot),
	}
	f.store = notify.NewStore(o.capacity, notify.WithIDGenerator(o.idGen))
	f.router = routing.New(f.store, f.log,
		routing.WithBreakingNewsHandler(o.onBreakingNews),
		routing.WithCallbackRecovery(o.callbackRecover),
		routing.WithClock(o.clock),
		routing.WithLogger(o.logger.With(logging.Component("router"))),
	)
	f.manager = session.New(url, dialer, f,
		session.WithClock(o.clock),
		session.WithLogger(o.logger.With(logging.Component("session"))),
		session.WithReconnectPolicy(o.policy),
		session.WithStateListener(f.onState),
	)
	return f
}

// HandleFrame is the manager's frame sink.
func (f *Feed) HandleFrame(frame []byte, reply core.Replier) {
	if out := f.router.HandleFrame(frame, reply); out >= routing.OutcomeLogged {
		f.publish()
	}
}

func (f *Feed) onState(change core.StateChange) {
	f.logger.Info("feed state changed", "from", change.From.String(), "to", change.To.String())
	f.publish()
}

func (f *Feed) State() core.ConnectionState { return f.manager.State() }

func (f *Feed) Messages() []core.InboundMessage { return f.log.Messages() }

func (f *Feed) Notifications() []core.Notification { return f.store.Notifications() }

func (f *Feed) UnreadCount() int { return f.store.UnreadCount() }

func (f *Feed) Connect(ctx context.Context) error { return f.manager.Connect(ctx) }

func (f *Feed) Disconnect() { f.manager.Disconnect() }

func (f *Feed) MarkAsRead(id string) {
	f.store.MarkAsRead(id)
	f.publish()
}

func (f *Feed) MarkAllAsRead() {
	f.store.MarkAllAsRead()
	f.publish()
}

func (f *Feed) ClearNotifications() {
	f.store.Clear()
	f.publish()
}

func (f *Feed) ClearMessages() {
	f.log.Clear()
	f.publish()
}

func (f *Feed) Snapshot() core.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

// Subscribe returns a channel that always holds the latest snapshot. Slow
// readers skip intermediate versions. The cancel func closes the channel.
func (f *Feed) Subscribe() (<-chan core.Snapshot, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan core.Snapshot, 1)
	if f.closed {
		close(ch)
		return ch, func() {}
	}
	id := f.nextSub
	f.nextSub++
	f.subs[id] = ch
	ch <- f.snapshotLocked()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			if c, ok := f.subs[id]; ok {
				delete(f.subs, id)
				close(c)
			}
		})
	}
}

// Close disposes the connection manager and ends all subscriptions. Open
// subscribers receive one last snapshot in the Disconnected state before
// their channel is closed.
func (f *Feed) Close() error {
	err := f.manager.Close()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	for id, ch := range f.subs {
		delete(f.subs, id)
		close(ch)
	}
	return err
}

func (f *Feed) publish() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
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

func (f *Feed) snapshotLocked() core.Snapshot {
	notifications := f.store.Notifications()
	unread := 0
	for _, n := range notifications {
		if !n.Read {
			unread++
		}
	}
	return core.Snapshot{
		State:         f.manager.State(),
		Notifications: notifications,
		UnreadCount:   unread,
		MessageCount:  f.log.Len(),
		Version:       f.version,
	}
}

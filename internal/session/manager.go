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

// Package session keeps the single feed connection alive. A dropped or
// failed session is retried after the reconnect policy delay until the
// consumer disconnects or the manager is closed.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/redstarh/stocknews/newsfeed/internal/logging"
	"github.com/redstarh/stocknews/newsfeed/pkg/core"
)

// FrameHandler consumes inbound frames. reply writes to the same session.
type FrameHandler interface {
	HandleFrame(frame []byte, reply core.Replier)
}

type FrameHandlerFunc func(frame []byte, reply core.Replier)

func (f FrameHandlerFunc) HandleFrame(frame []byte, reply core.Replier) { f(frame, reply) }

type Manager struct {
	url     string
	dialer  core.Dialer
	handler FrameHandler
	clock   clock.Clock
	policy  ReconnectPolicy
	logger  *slog.Logger
	onState func(core.StateChange)

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	state      core.ConnectionState
	conn       core.Conn
	gen        uint64 // bumped per attempt and on disconnect; stale sessions compare against it
	dialing    bool
	cancelDial context.CancelFunc
	manual     bool
	closed     bool
	timer      *clock.Timer
	timerSeq   uint64
	attempts   int
	pending    []core.StateChange

	emitMu sync.Mutex
}

func New(url string, dialer core.Dialer, handler FrameHandler, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		url:     url,
		dialer:  dialer,
		handler: handler,
		clock:   clock.New(),
		policy:  FixedDelay(DefaultReconnectDelay),
		logger:  logging.Discard(),
		ctx:     ctx,
		cancel:  cancel,
		state:   core.StateConnecting,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) URL() string { return m.url }

func (m *Manager) State() core.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect opens a session unless one is open or being opened. It clears a
// previous Disconnect. Dial failures are not returned; they schedule a retry.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return core.ErrManagerClosed
	}
	m.manual = false
	dialCtx, cancel, gen, ok := m.beginAttemptLocked(ctx)
	m.mu.Unlock()
	m.flush()

	if ok {
		defer cancel()
		m.dial(dialCtx, gen)
	}
	return nil
}

// Disconnect closes the active session and suppresses any reconnect,
// including one whose timer is already pending.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.manual = true
	conn := m.detachLocked()
	m.mu.Unlock()
	m.flush()

	if conn != nil {
		if err := conn.Close(); err != nil {
			m.logger.Debug("close after disconnect", logging.Err(err))
		}
		m.logger.Info("disconnected", "url", m.url)
	}
}

// Close disposes the manager. Further Connect calls fail with
// core.ErrManagerClosed.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.manual = true
	conn := m.detachLocked()
	m.mu.Unlock()

	m.cancel()
	m.flush()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (m *Manager) beginAttemptLocked(parent context.Context) (context.Context, context.CancelFunc, uint64, bool) {
	if m.dialing || m.conn != nil {
		return nil, nil, 0, false
	}
	m.stopTimerLocked()
	m.dialing = true
	m.gen++

	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(m.ctx, cancel)
	m.cancelDial = func() {
		stop()
		cancel()
	}
	m.transitionLocked(core.StateConnecting)
	return ctx, m.cancelDial, m.gen, true
}

func (m *Manager) dial(ctx context.Context, gen uint64) {
	m.logger.Info("connecting", "url", m.url)
	conn, err := m.dialer.Dial(ctx, m.url)

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	m.dialing = false
	m.cancelDial = nil

	if err != nil {
		m.transitionLocked(core.StateDisconnected)
		delay := m.scheduleLocked()
		m.mu.Unlock()
		m.flush()
		m.logger.Warn("connect failed", "url", m.url, "retry_in", delay, logging.Err(err))
		return
	}

	m.conn = conn
	m.attempts = 0
	m.transitionLocked(core.StateConnected)
	m.mu.Unlock()
	m.flush()

	m.logger.Info("connected", "url", m.url)
	go m.readLoop(conn, gen)
}

func (m *Manager) readLoop(conn core.Conn, gen uint64) {
	var err error
	defer func() {
		if rec := recover(); rec != nil {
			m.logger.Error("frame handler panic recovered", "panic", rec, "stack", string(debug.Stack()))
			err = fmt.Errorf("frame handler panic: %v", rec)
		}
		conn.Close()
		m.handleClose(gen, err)
	}()

	for {
		var frame []byte
		frame, err = conn.ReadMessage()
		if err != nil {
			return
		}
		m.handler.HandleFrame(frame, conn)
	}
}

func (m *Manager) handleClose(gen uint64, cause error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.transitionLocked(core.StateDisconnected)
	if m.manual || m.closed {
		m.mu.Unlock()
		m.flush()
		return
	}
	delay := m.scheduleLocked()
	m.mu.Unlock()
	m.flush()

	m.logger.Warn("connection lost", "url", m.url, "retry_in", delay, logging.Err(cause))
}

func (m *Manager) scheduleLocked() time.Duration {
	m.stopTimerLocked()
	m.attempts++
	delay := m.policy.NextDelay(m.attempts)
	seq := m.timerSeq
	m.timer = m.clock.AfterFunc(delay, func() { m.reconnect(seq) })
	return delay
}

// reconnect runs on the timer goroutine. The manual-close flag is checked
// here as well because Disconnect may win the race against a timer that has
// already fired.
func (m *Manager) reconnect(seq uint64) {
	m.mu.Lock()
	if seq != m.timerSeq || m.manual || m.closed {
		m.mu.Unlock()
		m.logger.Debug("reconnect suppressed", "url", m.url)
		return
	}
	m.timer = nil
	ctx, cancel, gen, ok := m.beginAttemptLocked(m.ctx)
	m.mu.Unlock()
	m.flush()

	if ok {
		defer cancel()
		m.dial(ctx, gen)
	}
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.timerSeq++
}

func (m *Manager) detachLocked() core.Conn {
	m.stopTimerLocked()
	m.gen++
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	m.dialing = false
	m.attempts = 0
	conn := m.conn
	m.conn = nil
	m.transitionLocked(core.StateDisconnected)
	return conn
}

func (m *Manager) transitionLocked(to core.ConnectionState) {
	if m.state == to {
		return
	}
	change := core.StateChange{From: m.state, To: to}
	m.state = to
	if m.onState != nil {
		m.pending = append(m.pending, change)
	}
}

// flush delivers queued transitions. A caller that finds another goroutine
// already delivering leaves the queue to it.
func (m *Manager) flush() {
	if m.onState == nil {
		return
	}
	for {
		if !m.emitMu.TryLock() {
			return
		}
		m.mu.Lock()
		batch := m.pending
		m.pending = nil
		m.mu.Unlock()

		for _, change := range batch {
			m.onState(change)
		}
		m.emitMu.Unlock()

		m.mu.Lock()
		empty := len(m.pending) == 0
		m.mu.Unlock()
		if empty {
			return
		}
	}
}

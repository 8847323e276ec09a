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

// Package routing classifies inbound feed frames and dispatches them to the
// message log, the notification store and per-type handlers.
package routing

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/redstarh/stocknews/newsfeed/internal/logging"
	"github.com/redstarh/stocknews/newsfeed/pkg/core"
)

type Outcome int

const (
	OutcomeDropped Outcome = iota
	OutcomePong
	OutcomeLogged
	OutcomeNotified
)

func (o Outcome) String() string {
	switch o {
	case OutcomePong:
		return "pong"
	case OutcomeLogged:
		return "logged"
	case OutcomeNotified:
		return "notified"
	default:
		return "dropped"
	}
}

var pongFrame = []byte(`{"type":"pong"}`)

var errNoType = errors.New("frame has no type")

// Notifier receives messages that become notifications.
type Notifier interface {
	Add(msg core.InboundMessage, at time.Time) core.Notification
}

// Appender receives every routed message except liveness probes.
type Appender interface {
	Append(msg core.InboundMessage)
}

type Option func(*Router)

// WithBreakingNewsHandler sets the callback run synchronously for every
// breaking_news message that produced a notification.
func WithBreakingNewsHandler(fn func(core.BreakingNewsPayload)) Option {
	return func(r *Router) { r.onBreakingNews = fn }
}

// WithCallbackRecovery controls whether a panic raised by the breaking news
// callback is recovered and logged (the default) or left to propagate to the
// caller of HandleFrame.
func WithCallbackRecovery(enabled bool) Option {
	return func(r *Router) { r.recoverCallback = enabled }
}

func WithClock(c clock.Clock) Option {
	return func(r *Router) {
		if c != nil {
			r.clock = c
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

type Router struct {
	table           *Table
	store           Notifier
	log             Appender
	frames          *logging.FrameLogger
	logger          *slog.Logger
	clock           clock.Clock
	onBreakingNews  func(core.BreakingNewsPayload)
	recoverCallback bool
}

func New(store Notifier, log Appender, opts ...Option) *Router {
	r := &Router{
		table:           NewTable(),
		store:           store,
		log:             log,
		logger:          logging.Discard(),
		clock:           clock.New(),
		recoverCallback: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.frames = logging.NewFrameLogger(r.logger)

	r.Handle(core.TypeBreakingNews, r.breakingNews)
	r.Handle(core.TypeConnected, func(f Frame) bool {
		r.logger.Info("feed server greeting", "message", f.Message.Message)
		return false
	})
	r.Handle(core.TypeError, func(f Frame) bool {
		r.logger.Warn("feed server error", "message", f.Message.Message)
		return false
	})
	r.Handle(core.TypeScoreUpdate, func(f Frame) bool {
		r.logger.Debug("score update", "data", f.Message.Data)
		return false
	})
	return r
}

// Handle registers an extra handler for msgType, replacing any existing one.
func (r *Router) Handle(msgType string, h HandlerFunc) {
	r.table.Add(msgType, h)
}

// HandleFrame routes one raw frame. Malformed frames are dropped silently.
func (r *Router) HandleFrame(frame []byte, reply core.Replier) Outcome {
	f, err := decode(frame)
	if err != nil {
		r.frames.Dropped(len(frame), err)
		return OutcomeDropped
	}
	r.frames.Inbound(f.Message, len(frame))

	if f.Message.Type == core.TypePing {
		if err := reply.WriteMessage(pongFrame); err != nil {
			r.logger.Warn("pong write failed", logging.Err(err))
		} else {
			r.frames.Outbound(core.TypePong, len(pongFrame))
		}
		return OutcomePong
	}

	r.log.Append(f.Message)

	h, ok := r.table.Lookup(f.Message.Type)
	if ok && h(f) {
		return OutcomeNotified
	}
	return OutcomeLogged
}

func (r *Router) breakingNews(f Frame) bool {
	if f.Message.Data == nil {
		return false
	}
	var payload core.BreakingNewsPayload
	if err := json.Unmarshal(f.RawData, &payload); err != nil {
		r.logger.Debug("breaking news payload rejected", logging.Err(err))
		return false
	}

	n := r.store.Add(f.Message, r.clock.Now())
	r.logger.Info("breaking news",
		"notification_id", n.ID,
		"stock_code", payload.StockCode,
		"market", payload.Market,
		"news_score", payload.NewsScore,
	)
	r.notify(payload)
	return true
}

func (r *Router) notify(payload core.BreakingNewsPayload) {
	if r.onBreakingNews == nil {
		return
	}
	if r.recoverCallback {
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("breaking news callback panic recovered",
					"stock_code", payload.StockCode,
					"panic", rec,
					"stack", string(debug.Stack()),
				)
			}
		}()
	}
	r.onBreakingNews(payload)
}

type wireMessage struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`
	Message json.RawMessage `json:"message"`
}

func decode(frame []byte) (Frame, error) {
	var w wireMessage
	if err := json.Unmarshal(frame, &w); err != nil {
		return Frame{}, err
	}
	if w.Type == "" {
		return Frame{}, errNoType
	}

	f := Frame{Message: core.InboundMessage{Type: w.Type}}
	if len(w.Data) > 0 && !bytes.Equal(w.Data, []byte("null")) {
		var data map[string]any
		if json.Unmarshal(w.Data, &data) == nil {
			f.Message.Data = data
			f.RawData = w.Data
		}
	}
	if len(w.Message) > 0 {
		var text string
		if json.Unmarshal(w.Message, &text) == nil {
			f.Message.Message = text
		}
	}
	return f, nil
}

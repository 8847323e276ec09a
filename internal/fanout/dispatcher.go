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

// Package fanout forwards breaking news alerts from the feed to the
// configured sinks. Delivery is best effort: the queue is bounded and a full
// queue drops the alert.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sony/gobreaker"

	"github.com/redstarh/stocknews/newsfeed/internal/logging"
	"github.com/redstarh/stocknews/newsfeed/pkg/core"
)

const (
	DefaultQueueSize      = 64
	DefaultDedupeSize     = 256
	DefaultMinScore       = 80
	DefaultPublishTimeout = 5 * time.Second
	defaultMaxFailures    = 5
	defaultOpenTimeout    = 30 * time.Second
)

var (
	ErrFiltered  = errors.New("alert filtered")
	ErrDuplicate = errors.New("duplicate alert")
)

// SinkSource lists the sinks an alert goes to. The plugin registry returns
// only sinks whose last connect succeeded.
type SinkSource interface {
	HealthySinks() []core.Sink
}

// Filter decides which payloads are forwarded. An empty Markets list allows
// every market.
type Filter struct {
	MinScore float64
	Markets  []string
}

func (f Filter) Allows(p core.BreakingNewsPayload) bool {
	if p.NewsScore < f.MinScore {
		return false
	}
	if len(f.Markets) == 0 {
		return true
	}
	for _, m := range f.Markets {
		if strings.EqualFold(m, p.Market) {
			return true
		}
	}
	return false
}

type Stats struct {
	Published  uint64
	Failed     uint64
	Dropped    uint64
	Duplicates uint64
	Filtered   uint64
}

type Option func(*Dispatcher)

func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queueSize = n
		}
	}
}

func WithDedupeSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.dedupeSize = n
		}
	}
}

func WithFilter(f Filter) Option {
	return func(d *Dispatcher) { d.filter.Store(&f) }
}

func WithClock(c clock.Clock) Option {
	return func(d *Dispatcher) { d.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

func WithPublishTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.publishTimeout = t
		}
	}
}

// WithBreaker opens a sink's circuit after maxFailures consecutive publish
// errors and probes it again after openTimeout.
func WithBreaker(maxFailures uint32, openTimeout time.Duration) Option {
	return func(d *Dispatcher) {
		if maxFailures > 0 {
			d.maxFailures = maxFailures
		}
		if openTimeout > 0 {
			d.openTimeout = openTimeout
		}
	}
}

func WithIDGenerator(gen func() string) Option {
	return func(d *Dispatcher) {
		if gen != nil {
			d.newID = gen
		}
	}
}

type Dispatcher struct {
	sinks  SinkSource
	queue  chan core.Alert
	seen   *lru.Cache[string, struct{}]
	filter atomic.Pointer[Filter]
	clock  clock.Clock
	logger *slog.Logger
	newID  func() string

	queueSize      int
	dedupeSize     int
	publishTimeout time.Duration
	maxFailures    uint32
	openTimeout    time.Duration

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker

	published  atomic.Uint64
	failed     atomic.Uint64
	dropped    atomic.Uint64
	duplicates atomic.Uint64
	filtered   atomic.Uint64
}

func New(sinks SinkSource, opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{
		sinks:          sinks,
		clock:          clock.New(),
		logger:         logging.Discard(),
		newID:          core.NewID,
		queueSize:      DefaultQueueSize,
		dedupeSize:     DefaultDedupeSize,
		publishTimeout: DefaultPublishTimeout,
		maxFailures:    defaultMaxFailures,
		openTimeout:    defaultOpenTimeout,
		breakers:       make(map[string]*gobreaker.CircuitBreaker),
	}
	d.filter.Store(&Filter{MinScore: DefaultMinScore})
	for _, opt := range opts {
		opt(d)
	}

	seen, err := lru.New[string, struct{}](d.dedupeSize)
	if err != nil {
		return nil, fmt.Errorf("create dedupe cache: %w", err)
	}
	d.seen = seen
	d.queue = make(chan core.Alert, d.queueSize)
	return d, nil
}

// SetFilter swaps the forward filter. Safe to call while Run is active.
func (d *Dispatcher) SetFilter(f Filter) {
	d.filter.Store(&f)
	d.logger.Info("forward filter updated", "min_score", f.MinScore, "markets", f.Markets)
}

func (d *Dispatcher) Filter() Filter {
	return *d.filter.Load()
}

// OnBreakingNews is installed as the feed's breaking news callback. It never
// blocks the read loop.
func (d *Dispatcher) OnBreakingNews(p core.BreakingNewsPayload) {
	err := d.Enqueue(p)
	switch {
	case err == nil:
	case errors.Is(err, ErrFiltered), errors.Is(err, ErrDuplicate):
		d.logger.Debug("alert skipped", "stock_code", p.StockCode, "reason", err.Error())
	default:
		d.logger.Warn("alert dropped", "stock_code", p.StockCode, logging.Err(err))
	}
}

// Enqueue filters, de-duplicates and queues one alert.
func (d *Dispatcher) Enqueue(p core.BreakingNewsPayload) error {
	if !d.filter.Load().Allows(p) {
		d.filtered.Add(1)
		return ErrFiltered
	}

	alert := core.Alert{ID: d.newID(), Payload: p, ReceivedAt: d.clock.Now()}
	key := alert.DedupeKey()
	if seen, _ := d.seen.ContainsOrAdd(key, struct{}{}); seen {
		d.duplicates.Add(1)
		return ErrDuplicate
	}

	select {
	case d.queue <- alert:
		return nil
	default:
		d.seen.Remove(key)
		d.dropped.Add(1)
		return fmt.Errorf("%w: capacity=%d", core.ErrQueueFull, d.queueSize)
	}
}

// Run publishes queued alerts until ctx is cancelled. Alerts still queued
// at that point are discarded.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("alert dispatcher started", "queue_size", d.queueSize)
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("alert dispatcher stopped", "pending", len(d.queue))
			return nil
		case alert := <-d.queue:
			d.deliver(ctx, alert)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, alert core.Alert) {
	for _, s := range d.sinks.HealthySinks() {
		d.publish(ctx, s, alert)
	}
}

func (d *Dispatcher) publish(ctx context.Context, s core.Sink, alert core.Alert) {
	defer func() {
		if r := recover(); r != nil {
			d.failed.Add(1)
			d.logger.Error("sink publish panic recovered", "sink", s.Name(), "error", r)
		}
	}()

	pctx, cancel := context.WithTimeout(ctx, d.publishTimeout)
	defer cancel()

	_, err := d.breaker(s.Name()).Execute(func() (interface{}, error) {
		return nil, s.Publish(pctx, alert)
	})
	switch {
	case err == nil:
		d.published.Add(1)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		d.failed.Add(1)
		d.logger.Debug("sink circuit open", "sink", s.Name(), "alert_id", alert.ID)
	default:
		d.failed.Add(1)
		d.logger.Warn("alert publish failed", "sink", s.Name(), "alert_id", alert.ID, logging.Err(err))
	}
}

func (d *Dispatcher) breaker(name string) *gobreaker.CircuitBreaker {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cb, ok := d.breakers[name]; ok {
		return cb
	}
	maxFailures := d.maxFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: d.openTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			d.logger.Warn("sink circuit state changed", "sink", name, "from", from.String(), "to", to.String())
		},
	})
	d.breakers[name] = cb
	return cb
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Published:  d.published.Load(),
		Failed:     d.failed.Load(),
		Dropped:    d.dropped.Load(),
		Duplicates: d.duplicates.Load(),
		Filtered:   d.filtered.Load(),
	}
}

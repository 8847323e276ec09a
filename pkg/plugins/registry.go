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

package plugins

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/redstarh/stocknews/newsfeed/internal/logging"
	"github.com/redstarh/stocknews/newsfeed/pkg/core"
)

// Registry owns the configured entrypoints and sinks and tracks which sinks
// are currently reachable.
type Registry struct {
	entrypoints map[string]core.Entrypoint
	sinks       map[string]core.Sink
	healthy     map[string]bool
	logger      *slog.Logger
	mu          sync.RWMutex
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		entrypoints: make(map[string]core.Entrypoint),
		sinks:       make(map[string]core.Sink),
		healthy:     make(map[string]bool),
		logger:      logger,
	}
}

func (r *Registry) RegisterEntrypoint(e core.Entrypoint) {
	r.mu.Lock()
	r.entrypoints[e.Name()] = e
	r.mu.Unlock()
	r.logger.Info("registered entrypoint", "name", e.Name(), "type", e.Type())
}

func (r *Registry) RegisterSink(s core.Sink) {
	r.mu.Lock()
	r.sinks[s.Name()] = s
	r.mu.Unlock()
	r.logger.Info("registered sink", "name", s.Name(), "type", s.Type())
}

func (r *Registry) Entrypoints() map[string]core.Entrypoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cp := make(map[string]core.Entrypoint, len(r.entrypoints))
	for k, v := range r.entrypoints {
		cp[k] = v
	}
	return cp
}

func (r *Registry) Sinks() map[string]core.Sink {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cp := make(map[string]core.Sink, len(r.sinks))
	for k, v := range r.sinks {
		cp[k] = v
	}
	return cp
}

// ConnectSinks connects every sink concurrently and returns how many
// succeeded. A failed sink is marked unhealthy; it does not abort the others.
func (r *Registry) ConnectSinks(ctx context.Context) int {
	return r.connect(ctx, r.Sinks())
}

// ReconnectUnhealthy retries only the sinks whose last connect failed.
func (r *Registry) ReconnectUnhealthy(ctx context.Context) int {
	r.mu.RLock()
	pending := make(map[string]core.Sink)
	for name, s := range r.sinks {
		if !r.healthy[name] {
			pending[name] = s
		}
	}
	r.mu.RUnlock()
	if len(pending) == 0 {
		return 0
	}
	return r.connect(ctx, pending)
}

func (r *Registry) connect(ctx context.Context, sinks map[string]core.Sink) int {
	var (
		g         errgroup.Group
		connected int
	)
	for name, s := range sinks {
		g.Go(func() error {
			err := s.Connect(ctx)

			r.mu.Lock()
			r.healthy[name] = err == nil
			if err == nil {
				connected++
			}
			r.mu.Unlock()

			if err != nil {
				r.logger.Error("sink connect failed", "name", name, "type", s.Type(), logging.Err(err))
			}
			return nil
		})
	}
	_ = g.Wait()
	return connected
}

func (r *Registry) IsSinkHealthy(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.healthy[name]
}

// HealthySinks returns the connected sinks ordered by name.
func (r *Registry) HealthySinks() []core.Sink {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.Sink, 0, len(r.sinks))
	for name, s := range r.sinks {
		if r.healthy[name] {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

func (r *Registry) StartEntrypoints(ctx context.Context, feed core.Feed) {
	for name, ep := range r.Entrypoints() {
		go func(n string, e core.Entrypoint) {
			if err := e.Start(ctx, feed); err != nil {
				r.logger.Error("entrypoint failed", "name", n, logging.Err(err))
			}
		}(name, ep)
	}
}

func (r *Registry) StopAll(ctx context.Context) {
	for name, ep := range r.Entrypoints() {
		r.logger.Info("stopping entrypoint", "name", name)
		if err := ep.Stop(ctx); err != nil {
			r.logger.Warn("entrypoint stop failed", "name", name, logging.Err(err))
		}
	}
	for name, s := range r.Sinks() {
		r.logger.Info("stopping sink", "name", name)
		if err := s.Disconnect(ctx); err != nil {
			r.logger.Warn("sink disconnect failed", "name", name, logging.Err(err))
		}
		r.mu.Lock()
		r.healthy[name] = false
		r.mu.Unlock()
	}
}

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

package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redstarh/stocknews/newsfeed/internal/logging"
	"github.com/redstarh/stocknews/newsfeed/pkg/core"
)

const defaultKeepAlive = 15 * time.Second

// Entrypoint streams feed snapshots as server-sent events. Each event
// carries the whole snapshot; slow clients skip intermediate versions.
type Entrypoint struct {
	name      string
	port      int
	feed      core.Feed
	server    *http.Server
	logger    *slog.Logger
	keepAlive time.Duration
	clients   atomic.Int64
	done      chan struct{}
	stopOnce  sync.Once
}

func New(name string, port int, logger *slog.Logger) *Entrypoint {
	return &Entrypoint{
		name:      name,
		port:      port,
		server:    newServer(port),
		logger:    logger,
		keepAlive: defaultKeepAlive,
		done:      make(chan struct{}),
	}
}

// newServer is built up front so Stop never races with Start.
func newServer(port int) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func (e *Entrypoint) Name() string { return e.name }
func (e *Entrypoint) Type() string { return "sse" }

func (e *Entrypoint) Start(ctx context.Context, feed core.Feed) error {
	e.server.Handler = e.Handler(feed)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		e.Stop(shutdownCtx)
	}()

	e.logger.Info("sse entrypoint starting", "name", e.name, "port", e.port)
	if err := e.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop ends every open stream, then shuts the server down.
func (e *Entrypoint) Stop(ctx context.Context) error {
	e.stopOnce.Do(func() { close(e.done) })
	return e.server.Shutdown(ctx)
}

func (e *Entrypoint) Clients() int64 { return e.clients.Load() }

func (e *Entrypoint) Handler(feed core.Feed) http.Handler {
	e.feed = feed
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", e.handleSSE)
	return mux
}

func (e *Entrypoint) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	clientID := core.GenerateClientID(r)
	updates, cancel := e.feed.Subscribe()
	e.clients.Add(1)
	defer func() {
		cancel()
		e.clients.Add(-1)
		e.logger.Info("sse client disconnected", "client_id", clientID)
	}()

	e.logger.Info("sse client connected", "client_id", clientID)

	keepAlive := time.NewTicker(e.keepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-e.done:
			return
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case snap, ok := <-updates:
			if !ok {
				return
			}
			data, err := json.Marshal(snap)
			if err != nil {
				e.logger.Error("marshal sse event failed", logging.Err(err))
				continue
			}
			fmt.Fprintf(w, "event: snapshot\nid: %d\ndata: %s\n\n", snap.Version, data)
			flusher.Flush()
		}
	}
}

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

package httppost

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/redstarh/stocknews/newsfeed/internal/logging"
	"github.com/redstarh/stocknews/newsfeed/pkg/core"
)

// Entrypoint exposes the feed's write operations. Every mutation answers
// with the resulting snapshot.
type Entrypoint struct {
	name   string
	port   int
	feed   core.Feed
	server *http.Server
	logger *slog.Logger
}

func New(name string, port int, logger *slog.Logger) *Entrypoint {
	return &Entrypoint{
		name:   name,
		port:   port,
		server: newServer(port),
		logger: logger,
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
func (e *Entrypoint) Type() string { return "http_post" }

func (e *Entrypoint) Start(ctx context.Context, feed core.Feed) error {
	e.server.Handler = e.Handler(feed)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		e.server.Shutdown(shutdownCtx)
	}()

	e.logger.Info("http_post entrypoint starting", "name", e.name, "port", e.port)
	if err := e.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (e *Entrypoint) Stop(ctx context.Context) error {
	return e.server.Shutdown(ctx)
}

func (e *Entrypoint) Handler(feed core.Feed) http.Handler {
	e.feed = feed
	r := chi.NewRouter()
	r.Post("/connect", e.handleConnect)
	r.Post("/disconnect", e.handleDisconnect)
	r.Post("/notifications/read-all", e.handleMarkAllRead)
	r.Post("/notifications/{id}/read", e.handleMarkRead)
	r.Delete("/notifications", e.handleClearNotifications)
	r.Delete("/messages", e.handleClearMessages)
	return r
}

func (e *Entrypoint) handleConnect(w http.ResponseWriter, r *http.Request) {
	if err := e.feed.Connect(r.Context()); err != nil {
		e.logger.Warn("connect request failed", "client_id", core.GenerateClientID(r), logging.Err(err))
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	e.respond(w, r, "connect")
}

func (e *Entrypoint) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	e.feed.Disconnect()
	e.respond(w, r, "disconnect")
}

func (e *Entrypoint) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	e.feed.MarkAsRead(chi.URLParam(r, "id"))
	e.respond(w, r, "mark_read")
}

func (e *Entrypoint) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	e.feed.MarkAllAsRead()
	e.respond(w, r, "mark_all_read")
}

func (e *Entrypoint) handleClearNotifications(w http.ResponseWriter, r *http.Request) {
	e.feed.ClearNotifications()
	e.respond(w, r, "clear_notifications")
}

func (e *Entrypoint) handleClearMessages(w http.ResponseWriter, r *http.Request) {
	e.feed.ClearMessages()
	e.respond(w, r, "clear_messages")
}

func (e *Entrypoint) respond(w http.ResponseWriter, r *http.Request, op string) {
	e.logger.Debug("feed command", "op", op, "client_id", core.GenerateClientID(r))
	body, err := json.Marshal(e.feed.Snapshot())
	if err != nil {
		http.Error(w, "encode snapshot", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

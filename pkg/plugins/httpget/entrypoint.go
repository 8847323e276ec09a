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

package httpget

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/redstarh/stocknews/newsfeed/pkg/core"
)

const defaultPollTimeout = 30 * time.Second

// NotificationView is a notification with its display fields resolved.
type NotificationView struct {
	core.Notification
	Title string `json:"title"`
	Age   string `json:"age"`
}

// Entrypoint serves the read side of the feed over plain HTTP.
type Entrypoint struct {
	name        string
	port        int
	feed        core.Feed
	server      *http.Server
	logger      *slog.Logger
	pollTimeout time.Duration
	now         func() time.Time
}

func New(name string, port int, logger *slog.Logger) *Entrypoint {
	return &Entrypoint{
		name:        name,
		port:        port,
		server:      newServer(port),
		logger:      logger,
		pollTimeout: defaultPollTimeout,
		now:         time.Now,
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
func (e *Entrypoint) Type() string { return "http_get" }

func (e *Entrypoint) Start(ctx context.Context, feed core.Feed) error {
	e.server.Handler = e.Handler(feed)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		e.server.Shutdown(shutdownCtx)
	}()

	e.logger.Info("http_get entrypoint starting", "name", e.name, "port", e.port)
	if err := e.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (e *Entrypoint) Stop(ctx context.Context) error {
	return e.server.Shutdown(ctx)
}

// Handler builds the read API routes over feed.
func (e *Entrypoint) Handler(feed core.Feed) http.Handler {
	e.feed = feed
	r := chi.NewRouter()
	r.Get("/state", e.handleState)
	r.Get("/messages", e.handleMessages)
	r.Get("/notifications", e.handleNotifications)
	r.Get("/notifications/{id}", e.handleNotification)
	r.Get("/unread-count", e.handleUnreadCount)
	r.Get("/snapshot", e.handleSnapshot)
	r.Get("/poll", e.handlePoll)
	return r
}

func (e *Entrypoint) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]core.ConnectionState{"state": e.feed.State()})
}

func (e *Entrypoint) handleMessages(w http.ResponseWriter, r *http.Request) {
	msgs := e.feed.Messages()
	if msgs == nil {
		msgs = []core.InboundMessage{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (e *Entrypoint) handleNotifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, e.views(e.feed.Notifications()))
}

func (e *Entrypoint) handleNotification(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	for _, v := range e.views(e.feed.Notifications()) {
		if v.ID == id {
			writeJSON(w, http.StatusOK, v)
			return
		}
	}
	http.Error(w, "notification not found", http.StatusNotFound)
}

func (e *Entrypoint) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"unread_count": e.feed.UnreadCount()})
}

func (e *Entrypoint) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, e.feed.Snapshot())
}

// handlePoll holds the request until a snapshot newer than ?since= exists,
// or answers 204 after the poll timeout.
func (e *Entrypoint) handlePoll(w http.ResponseWriter, r *http.Request) {
	var since uint64
	if s := r.URL.Query().Get("since"); s != "" {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			http.Error(w, "since must be a version number", http.StatusBadRequest)
			return
		}
		since = v
	}

	updates, cancel := e.feed.Subscribe()
	defer cancel()

	timeout := time.NewTimer(e.pollTimeout)
	defer timeout.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-timeout.C:
			w.WriteHeader(http.StatusNoContent)
			return
		case snap, ok := <-updates:
			if !ok {
				http.Error(w, "feed closed", http.StatusGone)
				return
			}
			if snap.Version > since {
				writeJSON(w, http.StatusOK, snap)
				return
			}
		}
	}
}

func (e *Entrypoint) views(ns []core.Notification) []NotificationView {
	now := e.now()
	out := make([]NotificationView, 0, len(ns))
	for _, n := range ns {
		out = append(out, NotificationView{
			Notification: n,
			Title:        n.Title(),
			Age:          core.FormatAge(now, n.Time()),
		})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

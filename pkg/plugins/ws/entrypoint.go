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

package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/redstarh/stocknews/newsfeed/internal/logging"
	"github.com/redstarh/stocknews/newsfeed/pkg/core"
)

// Commands accepted from relay clients.
const (
	CmdMarkRead      = "mark_read"
	CmdMarkAllRead   = "mark_all_read"
	CmdClear         = "clear"
	CmdClearMessages = "clear_messages"
	CmdConnect       = "connect"
	CmdDisconnect    = "disconnect"
)

// Frame types written to relay clients.
const (
	FrameSnapshot = "snapshot"
	FrameError    = "error"
)

var ErrUnknownCommand = errors.New("unknown command")

type Command struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
}

type Frame struct {
	Type     string         `json:"type"`
	Snapshot *core.Snapshot `json:"data,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// client serializes writes; gorilla connections allow one concurrent writer.
type client struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Entrypoint relays feed snapshots to websocket clients and applies the
// commands they send back.
type Entrypoint struct {
	name     string
	port     int
	upgrader websocket.Upgrader
	feed     core.Feed
	server   *http.Server
	logger   *slog.Logger
	clients  sync.Map
}

func New(name string, port int, logger *slog.Logger) *Entrypoint {
	return &Entrypoint{
		name:   name,
		port:   port,
		server: newServer(port),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
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
func (e *Entrypoint) Type() string { return "websocket" }

func (e *Entrypoint) Start(ctx context.Context, feed core.Feed) error {
	e.server.Handler = e.Handler(feed)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		e.Stop(shutdownCtx)
	}()

	e.logger.Info("websocket entrypoint starting", "name", e.name, "port", e.port)
	if err := e.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop closes every relay connection, then shuts the server down.
func (e *Entrypoint) Stop(ctx context.Context) error {
	e.clients.Range(func(_, val any) bool {
		val.(*client).conn.Close()
		return true
	})
	return e.server.Shutdown(ctx)
}

func (e *Entrypoint) Handler(feed core.Feed) http.Handler {
	e.feed = feed
	mux := http.NewServeMux()
	mux.HandleFunc("/", e.handleConnection)
	return mux
}

func (e *Entrypoint) handleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		e.logger.Error("ws upgrade failed", logging.Err(err))
		return
	}

	c := &client{id: core.GenerateClientID(r), conn: conn}
	updates, cancel := e.feed.Subscribe()
	e.clients.Store(c, c)

	defer func() {
		cancel()
		conn.Close()
		e.clients.Delete(c)
		e.logger.Info("ws client disconnected", "client_id", c.id)
	}()

	e.logger.Info("ws client connected", "client_id", c.id)

	done := make(chan struct{})
	defer close(done)
	go e.downstreamLoop(c, updates, done)
	e.upstreamLoop(c)
}

func (e *Entrypoint) downstreamLoop(c *client, updates <-chan core.Snapshot, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := c.write(Frame{Type: FrameSnapshot, Snapshot: &snap}); err != nil {
				e.logger.Error("ws write failed", "client_id", c.id, logging.Err(err))
				c.conn.Close()
				return
			}
		}
	}
}

func (e *Entrypoint) upstreamLoop(c *client) {
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				e.logger.Error("ws read error", "client_id", c.id, logging.Err(err))
			}
			return
		}

		var cmd Command
		if err := json.Unmarshal(payload, &cmd); err != nil {
			e.reject(c, fmt.Errorf("decode command: %w", err))
			continue
		}
		if cmd.Type == core.TypePing {
			data, _ := json.Marshal(core.InboundMessage{Type: core.TypePong})
			c.mu.Lock()
			err = c.conn.WriteMessage(websocket.TextMessage, data)
			c.mu.Unlock()
			if err != nil {
				return
			}
			continue
		}
		if err := e.apply(context.Background(), cmd); err != nil {
			e.reject(c, err)
			continue
		}
		e.logger.Debug("feed command", "op", cmd.Type, "client_id", c.id)
	}
}

// apply runs one command against the feed. The resulting snapshot reaches
// the client through its subscription.
func (e *Entrypoint) apply(ctx context.Context, cmd Command) error {
	switch cmd.Type {
	case CmdMarkRead:
		e.feed.MarkAsRead(cmd.ID)
	case CmdMarkAllRead:
		e.feed.MarkAllAsRead()
	case CmdClear:
		e.feed.ClearNotifications()
	case CmdClearMessages:
		e.feed.ClearMessages()
	case CmdDisconnect:
		e.feed.Disconnect()
	case CmdConnect:
		return e.feed.Connect(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
	}
	return nil
}

func (e *Entrypoint) reject(c *client, err error) {
	e.logger.Warn("ws command rejected", "client_id", c.id, logging.Err(err))
	if werr := c.write(Frame{Type: FrameError, Error: err.Error()}); werr != nil {
		c.conn.Close()
	}
}

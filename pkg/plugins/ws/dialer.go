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
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/redstarh/stocknews/newsfeed/pkg/core"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultReadLimit        = 1 << 20
	defaultWriteTimeout     = 10 * time.Second
	closeGrace              = time.Second
)

type DialerOption func(*Dialer)

func WithHandshakeTimeout(d time.Duration) DialerOption {
	return func(dl *Dialer) {
		if d > 0 {
			dl.dialer.HandshakeTimeout = d
		}
	}
}

// WithReadTimeout fails a session that stays silent longer than d. The feed
// server pings periodically, so silence means a dead peer.
func WithReadTimeout(d time.Duration) DialerOption {
	return func(dl *Dialer) { dl.readTimeout = d }
}

// WithWriteTimeout bounds each outbound frame, so a peer that stops reading
// cannot hold the writer forever.
func WithWriteTimeout(d time.Duration) DialerOption {
	return func(dl *Dialer) {
		if d > 0 {
			dl.writeTimeout = d
		}
	}
}

func WithHeader(h http.Header) DialerOption {
	return func(dl *Dialer) { dl.header = h }
}

// Dialer opens feed sessions over gorilla/websocket.
type Dialer struct {
	dialer      websocket.Dialer
	header       http.Header
	readTimeout  time.Duration
	writeTimeout time.Duration
}

var _ core.Dialer = (*Dialer)(nil)

func NewDialer(opts ...DialerOption) *Dialer {
	d := &Dialer{
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: defaultHandshakeTimeout,
		},
		writeTimeout: defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dialer) Dial(ctx context.Context, url string) (core.Conn, error) {
	c, resp, err := d.dialer.DialContext(ctx, url, d.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("ws dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("ws dial %s: %w", url, err)
	}
	c.SetReadLimit(defaultReadLimit)
	return &conn{ws: c, readTimeout: d.readTimeout, writeTimeout: d.writeTimeout}, nil
}

type conn struct {
	ws           *websocket.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
	writeMu      sync.Mutex
}

func (c *conn) ReadMessage() ([]byte, error) {
	if c.readTimeout > 0 {
		if err := c.ws.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return nil, err
		}
	}
	_, data, err := c.ws.ReadMessage()
	return data, err
}

func (c *conn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Close sends a normal closure frame before dropping the socket. It does not
// wait for writeMu: WriteControl may run concurrently with WriteMessage.
func (c *conn) Close() error {
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeGrace))
	return c.ws.Close()
}

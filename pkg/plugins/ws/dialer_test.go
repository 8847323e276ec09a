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
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redstarh/stocknews/newsfeed/pkg/core"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestDialerRoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "dashboard", r.Header.Get("X-Client-ID"))
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		c.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`))
		_, data, err := c.ReadMessage()
		if err == nil {
			received <- string(data)
		}
		c.ReadMessage()
	}))
	defer srv.Close()

	d := NewDialer(WithHandshakeTimeout(time.Second), WithHeader(http.Header{"X-Client-ID": {"dashboard"}}))
	conn, err := d.Dial(context.Background(), wsURL(srv))
	require.NoError(t, err)

	frame, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, `{"type":"ping"}`, string(frame))

	require.NoError(t, conn.WriteMessage([]byte(`{"type":"pong"}`)))
	select {
	case got := <-received:
		assert.Equal(t, `{"type":"pong"}`, got)
	case <-time.After(2 * time.Second):
		t.Fatal("server never received pong")
	}

	assert.NoError(t, conn.Close())
}

func TestDialerRejectedHandshake(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewDialer().Dial(context.Background(), wsURL(srv))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}

func TestDialerReadTimeout(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		c.ReadMessage()
	}))
	defer srv.Close()

	conn, err := NewDialer(WithReadTimeout(50*time.Millisecond)).Dial(context.Background(), wsURL(srv))
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.ReadMessage()
	assert.Error(t, err)
}

func TestDialerCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDialer().Dial(ctx, "ws://127.0.0.1:1/ws")
	assert.Error(t, err)
}

// stalledPeer accepts a session and never reads from it.
func stalledPeer(t *testing.T) *httptest.Server {
	t.Helper()
	release := make(chan struct{})
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		<-release
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })
	return srv
}

func writeUntilError(conn core.Conn) error {
	payload := []byte(strings.Repeat("x", 64<<10))
	for {
		if err := conn.WriteMessage(payload); err != nil {
			return err
		}
	}
}

func TestDialerWriteTimeout(t *testing.T) {
	srv := stalledPeer(t)
	conn, err := NewDialer(WithWriteTimeout(100*time.Millisecond)).Dial(context.Background(), wsURL(srv))
	require.NoError(t, err)
	defer conn.Close()

	done := make(chan error, 1)
	go func() { done <- writeUntilError(conn) }()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("write to a stalled peer never timed out")
	}
}

func TestCloseDoesNotWaitForStalledWrite(t *testing.T) {
	srv := stalledPeer(t)
	conn, err := NewDialer(WithWriteTimeout(time.Minute)).Dial(context.Background(), wsURL(srv))
	require.NoError(t, err)

	writeErr := make(chan error, 1)
	go func() { writeErr <- writeUntilError(conn) }()
	time.Sleep(300 * time.Millisecond)

	closed := make(chan struct{})
	go func() {
		conn.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(3 * time.Second):
		t.Fatal("Close blocked behind a stalled write")
	}
	select {
	case err := <-writeErr:
		assert.Error(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("stalled write was not released by Close")
	}
}

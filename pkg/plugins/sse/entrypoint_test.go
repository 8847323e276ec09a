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
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redstarh/stocknews/newsfeed/internal/logging"
	"github.com/redstarh/stocknews/newsfeed/pkg/core"
	"github.com/redstarh/stocknews/newsfeed/pkg/plugins/feedtest"
)

type event struct {
	name string
	id   string
	snap core.Snapshot
}

// readEvent returns the next event, skipping comment lines.
func readEvent(t *testing.T, r *bufio.Reader) event {
	t.Helper()
	var ev event
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if ev.name != "" {
				return ev
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event: "):
			ev.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "id: "):
			ev.id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "data: "):
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev.snap))
		}
	}
}

func TestStreamsSnapshots(t *testing.T) {
	feed := feedtest.New(core.Notification{ID: "n1"})
	e := New("stream", 0, logging.Discard())
	srv := httptest.NewServer(e.Handler(feed))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	first := readEvent(t, r)
	assert.Equal(t, "snapshot", first.name)
	assert.Equal(t, "0", first.id)
	assert.Equal(t, 1, first.snap.UnreadCount)

	feed.MarkAllAsRead()
	next := readEvent(t, r)
	assert.Equal(t, "1", next.id)
	assert.Equal(t, 0, next.snap.UnreadCount)
	assert.Equal(t, int64(1), e.Clients())
}

func TestKeepAliveComments(t *testing.T) {
	e := New("stream", 0, logging.Discard())
	e.keepAlive = 10 * time.Millisecond
	srv := httptest.NewServer(e.Handler(feedtest.New()))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	r := bufio.NewReader(resp.Body)
	readEvent(t, r)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": keep-alive\n", line)
}

func TestStopEndsStreams(t *testing.T) {
	feed := feedtest.New()
	e := New("stream", 0, logging.Discard())
	srv := httptest.NewServer(e.Handler(feed))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	readEvent(t, bufio.NewReader(resp.Body))

	require.NoError(t, e.Stop(context.Background()))
	require.Eventually(t, func() bool { return e.Clients() == 0 && feed.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, e.Stop(context.Background()))
}

func TestStopBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e := New("api", 0, logging.Discard())
	require.NoError(t, e.Stop(context.Background()))
	assert.NoError(t, e.Start(ctx, feedtest.New()))
}

func TestStopWhileStarting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e := New("api", 0, logging.Discard())
	errCh := make(chan error, 1)
	go func() { errCh <- e.Start(ctx, feedtest.New()) }()

	require.NoError(t, e.Stop(context.Background()))
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
}

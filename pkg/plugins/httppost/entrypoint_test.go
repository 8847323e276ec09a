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
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redstarh/stocknews/newsfeed/internal/logging"
	"github.com/redstarh/stocknews/newsfeed/pkg/core"
	"github.com/redstarh/stocknews/newsfeed/pkg/plugins/feedtest"
)

func do(t *testing.T, method, url string) (*http.Response, core.Snapshot) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	req.Header.Set(core.ClientIDHeader, "test-client")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var snap core.Snapshot
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	}
	return resp, snap
}

func TestWriteEndpoints(t *testing.T) {
	feed := feedtest.New(
		core.Notification{ID: "n2"},
		core.Notification{ID: "n1"},
	)
	srv := httptest.NewServer(New("api-write", 0, logging.Discard()).Handler(feed))
	defer srv.Close()

	_, snap := do(t, http.MethodPost, srv.URL+"/notifications/n1/read")
	assert.Equal(t, 1, snap.UnreadCount)

	_, snap = do(t, http.MethodPost, srv.URL+"/notifications/unknown/read")
	assert.Equal(t, 1, snap.UnreadCount)

	_, snap = do(t, http.MethodPost, srv.URL+"/notifications/read-all")
	assert.Equal(t, 0, snap.UnreadCount)

	_, snap = do(t, http.MethodDelete, srv.URL+"/notifications")
	assert.Empty(t, snap.Notifications)

	_, snap = do(t, http.MethodDelete, srv.URL+"/messages")
	assert.Zero(t, snap.MessageCount)

	_, snap = do(t, http.MethodPost, srv.URL+"/disconnect")
	assert.Equal(t, core.StateDisconnected, snap.State)

	_, snap = do(t, http.MethodPost, srv.URL+"/connect")
	assert.Equal(t, core.StateConnected, snap.State)

	assert.Equal(t, []string{
		"mark_read:n1",
		"mark_read:unknown",
		"mark_all_read",
		"clear_notifications",
		"clear_messages",
		"disconnect",
		"connect",
	}, feed.Calls())
}

func TestConnectFailure(t *testing.T) {
	feed := feedtest.New()
	feed.SetConnectError(core.ErrManagerClosed)
	srv := httptest.NewServer(New("api-write", 0, logging.Discard()).Handler(feed))
	defer srv.Close()

	resp, _ := do(t, http.MethodPost, srv.URL+"/connect")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestReadsAreNotRouted(t *testing.T) {
	srv := httptest.NewServer(New("api-write", 0, logging.Discard()).Handler(feedtest.New()))
	defer srv.Close()

	resp, _ := do(t, http.MethodGet, srv.URL+"/notifications")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
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

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

package config

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redstarh/stocknews/newsfeed/internal/logging"
)

type reloads struct {
	mu   sync.Mutex
	cfgs []*Config
}

func (r *reloads) record(cfg *Config) {
	r.mu.Lock()
	r.cfgs = append(r.cfgs, cfg)
	r.mu.Unlock()
}

func (r *reloads) all() []*Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Config(nil), r.cfgs...)
}

func touch(t *testing.T, path, content string, at time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(t, os.Chtimes(path, at, at))
}

func TestWatcherReloadsChangedFile(t *testing.T) {
	path := writeConfig(t, "feed:\n  url: ws://localhost/ws\nforward:\n  min_score: 80\n")
	var got reloads
	w := NewWatcher(path, got.record, logging.Discard())
	w.SetInterval(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Watch(ctx)

	assert.Never(t, func() bool { return len(got.all()) > 0 }, 50*time.Millisecond, 10*time.Millisecond)

	touch(t, path, "feed:\n  url: ws://localhost/ws\nforward:\n  min_score: 60\n", time.Now().Add(time.Minute))
	require.Eventually(t, func() bool { return len(got.all()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, float64(60), got.all()[0].Forward.Filter().MinScore)
}

func TestWatcherSkipsInvalidConfig(t *testing.T) {
	path := writeConfig(t, "feed:\n  url: ws://localhost/ws\n")
	var got reloads
	w := NewWatcher(path, got.record, logging.Discard())

	touch(t, path, "feed:\n  url: ftp://localhost/ws\n", time.Now().Add(time.Minute))
	w.poll()
	assert.Empty(t, got.all())

	touch(t, path, "feed:\n  url: ws://localhost/ws\n", time.Now().Add(2*time.Minute))
	w.poll()
	assert.Len(t, got.all(), 1)
}

func TestWatcherMissingFile(t *testing.T) {
	var got reloads
	w := NewWatcher("/nonexistent/newsfeed.yaml", got.record, logging.Discard())
	w.poll()
	assert.Empty(t, got.all())
}

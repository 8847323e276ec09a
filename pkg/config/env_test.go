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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redstarh/stocknews/newsfeed/pkg/core"
)

func TestApplyEnvOverridesFile(t *testing.T) {
	t.Setenv("STOCKNEWS_WS_URL", "wss://prod.example.com/ws/news")
	t.Setenv("STOCKNEWS_FEED_CAPACITY", "5")
	t.Setenv("STOCKNEWS_FORWARD_MARKETS", "KR,US")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load(writeConfig(t, "feed:\n  url: ws://localhost:8000/ws/news\n"))
	require.NoError(t, err)

	assert.Equal(t, "wss://prod.example.com/ws/news", cfg.Feed.URL)
	assert.Equal(t, 5, cfg.Feed.Capacity)
	assert.Equal(t, []string{"KR", "US"}, cfg.Forward.Markets)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestApplyEnvRejectsBadNumber(t *testing.T) {
	t.Setenv("STOCKNEWS_FEED_CAPACITY", "ten")

	cfg, err := Parse([]byte("feed:\n  url: ws://localhost/ws\n"))
	require.NoError(t, err)
	assert.ErrorIs(t, ApplyEnv(cfg), core.ErrInvalidConfig)
}

func TestLoadEnvFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("STOCKNEWS_RECONNECT_POLICY=exponential\n"), 0o644))
	t.Setenv("STOCKNEWS_RECONNECT_POLICY", "")
	os.Unsetenv("STOCKNEWS_RECONNECT_POLICY")

	require.NoError(t, LoadEnvFiles(path))
	assert.Equal(t, "exponential", os.Getenv("STOCKNEWS_RECONNECT_POLICY"))

	assert.NoError(t, LoadEnvFiles())
	assert.Error(t, LoadEnvFiles(filepath.Join(t.TempDir(), "missing.env")))
}

func TestLoadRejectsCapacityAboveTen(t *testing.T) {
	path := writeConfig(t, "feed:\n  url: ws://localhost/ws\n  capacity: 11\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feed.capacity must be between 1 and 10, got 11")

	t.Setenv("STOCKNEWS_FEED_CAPACITY", "11")
	_, err = Load(writeConfig(t, "feed:\n  url: ws://localhost/ws\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "got 11")
}

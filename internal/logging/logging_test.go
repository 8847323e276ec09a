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

package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redstarh/stocknews/newsfeed/pkg/core"
)

func TestNewJSONLoggerHonoursLevelVar(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	lvl.Set(slog.LevelWarn)

	logger, err := New(&buf, "json", lvl)
	require.NoError(t, err)

	logger.Info("hidden")
	assert.Zero(t, buf.Len())

	lvl.Set(slog.LevelDebug)
	logger.Debug("shown", Component("router"), Err(errors.New("boom")))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, "router", rec["component"])
	assert.Equal(t, "boom", rec["error"])
}

func TestNewTextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "TEXT", new(slog.LevelVar))
	require.NoError(t, err)

	logger.Info("hello", MessageType("ping"))
	assert.True(t, strings.Contains(buf.String(), "message_type=ping"))
}

func TestNewUnknownFormat(t *testing.T) {
	_, err := New(&bytes.Buffer{}, "xml", new(slog.LevelVar))
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"debug", slog.LevelDebug, false},
		{"WARN", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.input)
		if tt.wantErr {
			assert.Error(t, err, tt.input)
			continue
		}
		assert.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, got, tt.input)
	}
}

func TestErrNil(t *testing.T) {
	assert.True(t, Err(nil).Equal(slog.Attr{}))
}

func TestMessageLogKeepsArrivalOrder(t *testing.T) {
	l := NewMessageLog()
	l.Append(core.InboundMessage{Type: "connected"})
	l.Append(core.InboundMessage{Type: "score_update"})
	l.Append(core.InboundMessage{Type: "breaking_news"})

	msgs := l.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "connected", msgs[0].Type)
	assert.Equal(t, "breaking_news", msgs[2].Type)

	msgs[0].Type = "mutated"
	assert.Equal(t, "connected", l.Messages()[0].Type)

	l.Clear()
	assert.Zero(t, l.Len())
	assert.Empty(t, l.Messages())
}

func TestMessageLogConcurrentAppend(t *testing.T) {
	l := NewMessageLog()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Append(core.InboundMessage{Type: "x"})
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, l.Len())
}

func TestFrameLogger(t *testing.T) {
	var buf bytes.Buffer
	f := NewFrameLogger(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	f.Inbound(core.InboundMessage{Type: "ping"}, 15)
	f.Outbound("pong", 15)
	f.Dropped(3, errors.New("bad json"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], `"direction":"inbound"`)
	assert.Contains(t, lines[1], `"message_type":"pong"`)
	assert.Contains(t, lines[2], `"frame dropped"`)
}

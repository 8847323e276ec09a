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

package mqtt5

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redstarh/stocknews/newsfeed/internal/logging"
	"github.com/redstarh/stocknews/newsfeed/pkg/core"
)

func TestPublishPacket(t *testing.T) {
	s := New("m", "mqtt://localhost:1883", "stocknews/{market}/{stock_code}", 1, logging.Discard())
	pub, err := s.publishPacket(core.Alert{ID: "a-1", Payload: core.BreakingNewsPayload{StockCode: "005930", Market: "KR"}})
	require.NoError(t, err)

	assert.Equal(t, "stocknews/kr/005930", pub.Topic)
	assert.Equal(t, byte(1), pub.QoS)
	assert.Equal(t, "application/json", pub.Properties.ContentType)
	assert.Equal(t, "a-1", pub.Properties.User.Get("alert_id"))
}

func TestInvalidQoSFallsBackToOne(t *testing.T) {
	assert.Equal(t, byte(1), New("m", "mqtt://localhost", "t", 7, logging.Discard()).qos)
}

func TestPublishBeforeConnect(t *testing.T) {
	s := New("m", "mqtt://localhost:1883", "t", 0, logging.Discard())
	assert.ErrorIs(t, s.Publish(context.Background(), core.Alert{}), core.ErrSinkUnavailable)
}

func TestConnectInvalidURL(t *testing.T) {
	s := New("m", "://bad", "t", 0, logging.Discard())
	assert.ErrorContains(t, s.Connect(context.Background()), "invalid URL")
}

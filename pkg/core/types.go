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

package core

import (
	"encoding/json"
	"fmt"
	"time"
)

type ConnectionState int

const (
	StateConnecting ConnectionState = iota
	StateConnected
	StateDisconnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("ConnectionState(%d)", int(s))
	}
}

func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *ConnectionState) UnmarshalText(b []byte) error {
	switch string(b) {
	case "connecting":
		*s = StateConnecting
	case "connected":
		*s = StateConnected
	case "disconnected":
		*s = StateDisconnected
	default:
		return fmt.Errorf("unknown connection state %q", b)
	}
	return nil
}

// StateChange is published by the connection manager on every transition.
type StateChange struct {
	From ConnectionState `json:"from"`
	To   ConnectionState `json:"to"`
}

// Wire message types exchanged with the StockNews server.
const (
	TypePing         = "ping"
	TypePong         = "pong"
	TypeBreakingNews = "breaking_news"
	TypeScoreUpdate  = "score_update"
	TypeConnected    = "connected"
	TypeError        = "error"
)

// InboundMessage is one decoded frame. Data is nil when the frame carried no
// JSON object under "data".
type InboundMessage struct {
	Type    string         `json:"type"`
	Data    map[string]any `json:"data,omitempty"`
	Message string         `json:"message,omitempty"`
}

type BreakingNewsPayload struct {
	StockCode   string  `json:"stock_code"`
	StockName   *string `json:"stock_name"`
	Title       string  `json:"title"`
	Theme       *string `json:"theme"`
	Sentiment   *string `json:"sentiment"`
	NewsScore   float64 `json:"news_score"`
	Market      string  `json:"market"`
	PublishedAt *string `json:"published_at"`
}

// Notification is a breaking_news message surfaced to the user. Timestamp is
// the creation instant in milliseconds since the Unix epoch.
type Notification struct {
	ID        string         `json:"id"`
	Message   InboundMessage `json:"message"`
	Timestamp int64          `json:"timestamp"`
	Read      bool           `json:"read"`
}

func (n Notification) Time() time.Time {
	return time.UnixMilli(n.Timestamp)
}

// Snapshot is the read-only view handed to consumers.
type Snapshot struct {
	State         ConnectionState `json:"state"`
	Notifications []Notification  `json:"notifications"`
	UnreadCount   int             `json:"unread_count"`
	MessageCount  int             `json:"message_count"`
	Version       uint64          `json:"version"`
}

// Alert is the envelope published to fan-out sinks.
type Alert struct {
	ID         string              `json:"id"`
	Payload    BreakingNewsPayload `json:"data"`
	ReceivedAt time.Time           `json:"received_at"`
}

func (a Alert) Encode() ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
		Alert
	}{Type: TypeBreakingNews, Alert: a})
}

// DedupeKey identifies the same headline re-sent for the same stock.
func (a Alert) DedupeKey() string {
	return a.Payload.Market + "|" + a.Payload.StockCode + "|" + a.Payload.Title
}

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

package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/redstarh/stocknews/newsfeed/pkg/core"
)

const disconnectQuiesceMs = 250

// Sink publishes alerts to an MQTT 3.1.1 broker. The paho client reconnects
// on its own; Publish fails fast while the link is down.
type Sink struct {
	name     string
	broker   string
	topic    string
	qos      byte
	retained bool
	client   pahomqtt.Client
	logger   *slog.Logger
}

// New creates the sink. topic may contain {market} and {stock_code}.
func New(name, broker, topic string, qos byte, retained bool, logger *slog.Logger) *Sink {
	if qos > 2 {
		qos = 1
	}
	return &Sink{
		name:     name,
		broker:   broker,
		topic:    topic,
		qos:      qos,
		retained: retained,
		logger:   logger,
	}
}

func (s *Sink) Name() string { return s.name }
func (s *Sink) Type() string { return "mqtt" }

func (s *Sink) Connect(ctx context.Context) error {
	opts := pahomqtt.NewClientOptions().
		AddBroker(s.broker).
		SetClientID("newsfeed-" + s.name + "-" + uuid.NewString()[:8]).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second).
		SetOnConnectHandler(func(pahomqtt.Client) {
			s.logger.Info("mqtt connection up", "name", s.name)
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			s.logger.Warn("mqtt connection lost", "name", s.name, "error", err)
		})

	client := pahomqtt.NewClient(opts)
	if err := wait(ctx, client.Connect()); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", s.broker, err)
	}
	s.client = client

	s.logger.Info("mqtt sink connected", "name", s.name, "broker", s.broker, "topic", s.topic)
	return nil
}

func (s *Sink) Disconnect(ctx context.Context) error {
	if s.client != nil {
		s.client.Disconnect(disconnectQuiesceMs)
	}
	return nil
}

func (s *Sink) Publish(ctx context.Context, alert core.Alert) error {
	if s.client == nil || !s.client.IsConnectionOpen() {
		return fmt.Errorf("mqtt sink %s: %w", s.name, core.ErrSinkUnavailable)
	}
	body, err := alert.Encode()
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	return wait(ctx, s.client.Publish(alert.Topic(s.topic), s.qos, s.retained, body))
}

// wait blocks on a paho token until it completes or ctx ends.
func wait(ctx context.Context, t pahomqtt.Token) error {
	select {
	case <-t.Done():
		return t.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

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

package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/redstarh/stocknews/newsfeed/pkg/core"
)

// Sink publishes alerts to an exchange, or to the default exchange when only
// a queue is configured. The routing key may contain {market} and
// {stock_code}.
type Sink struct {
	name       string
	url        string
	exchange   string
	queue      string
	routingKey string
	conn       *amqp.Connection
	pubCh      *amqp.Channel
	mu         sync.Mutex
	logger     *slog.Logger
}

func New(name, url, exchange, queue, routingKey string, logger *slog.Logger) *Sink {
	if routingKey == "" {
		routingKey = queue
	}
	return &Sink{
		name:       name,
		url:        url,
		exchange:   exchange,
		queue:      queue,
		routingKey: routingKey,
		logger:     logger,
	}
}

func (s *Sink) Name() string { return s.name }
func (s *Sink) Type() string { return "rabbitmq" }

func (s *Sink) Connect(ctx context.Context) error {
	conn, err := amqp.Dial(s.url)
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("rabbitmq publish channel: %w", err)
	}

	if s.exchange != "" {
		if err := ch.ExchangeDeclare(s.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
			conn.Close()
			return fmt.Errorf("rabbitmq exchange declare %s: %w", s.exchange, err)
		}
	}
	if s.queue != "" {
		if _, err := ch.QueueDeclare(s.queue, true, false, false, false, nil); err != nil {
			conn.Close()
			return fmt.Errorf("rabbitmq queue declare %s: %w", s.queue, err)
		}
	}

	s.mu.Lock()
	s.conn, s.pubCh = conn, ch
	s.mu.Unlock()

	s.logger.Info("rabbitmq sink connected", "name", s.name, "exchange", s.exchange, "queue", s.queue)
	return nil
}

func (s *Sink) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pubCh != nil {
		s.pubCh.Close()
		s.pubCh = nil
	}
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}
	return nil
}

func (s *Sink) Publish(ctx context.Context, alert core.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pubCh == nil || s.pubCh.IsClosed() {
		return fmt.Errorf("rabbitmq sink %s: %w", s.name, core.ErrSinkUnavailable)
	}
	msg, err := publishing(alert)
	if err != nil {
		return err
	}
	return s.pubCh.PublishWithContext(ctx,
		s.exchange,
		alert.Topic(s.routingKey),
		false,
		false,
		msg,
	)
}

func publishing(alert core.Alert) (amqp.Publishing, error) {
	body, err := alert.Encode()
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encode alert: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         core.TypeBreakingNews,
		Body:         body,
		MessageId:    alert.ID,
		Timestamp:    alert.ReceivedAt,
	}, nil
}

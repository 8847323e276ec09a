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

package jms

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Azure/go-amqp"

	"github.com/redstarh/stocknews/newsfeed/pkg/core"
)

// Sink sends alerts over AMQP 1.0 to a JMS-style broker queue.
type Sink struct {
	name     string
	url      string
	queue    string
	conn     *amqp.Conn
	sendSess *amqp.Session
	sender   *amqp.Sender
	mu       sync.Mutex
	logger   *slog.Logger
}

func New(name, url, queue string, logger *slog.Logger) *Sink {
	return &Sink{
		name:   name,
		url:    url,
		queue:  queue,
		logger: logger,
	}
}

func (s *Sink) Name() string { return s.name }
func (s *Sink) Type() string { return "jms" }

func (s *Sink) Connect(ctx context.Context) error {
	if s.queue == "" {
		return fmt.Errorf("jms sink %s: queue is required", s.name)
	}
	conn, err := amqp.Dial(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("jms dial: %w", err)
	}
	sess, err := conn.NewSession(ctx, nil)
	if err != nil {
		conn.Close()
		return fmt.Errorf("jms send session: %w", err)
	}
	sender, err := sess.NewSender(ctx, s.queue, nil)
	if err != nil {
		conn.Close()
		return fmt.Errorf("jms sender: %w", err)
	}

	s.mu.Lock()
	s.conn, s.sendSess, s.sender = conn, sess, sender
	s.mu.Unlock()

	s.logger.Info("jms sink connected", "name", s.name, "url", s.url, "queue", s.queue)
	return nil
}

func (s *Sink) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sender != nil {
		s.sender.Close(ctx)
		s.sender = nil
	}
	if s.sendSess != nil {
		s.sendSess.Close(ctx)
		s.sendSess = nil
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
	sender := s.sender
	s.mu.Unlock()
	if sender == nil {
		return fmt.Errorf("jms sink %s: %w", s.name, core.ErrSinkUnavailable)
	}
	msg, err := message(alert)
	if err != nil {
		return err
	}
	return sender.Send(ctx, msg, nil)
}

func message(alert core.Alert) (*amqp.Message, error) {
	body, err := alert.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode alert: %w", err)
	}
	contentType := "application/json"
	subject := core.TypeBreakingNews
	return &amqp.Message{
		Data: [][]byte{body},
		Properties: &amqp.MessageProperties{
			MessageID:   alert.ID,
			ContentType: &contentType,
			Subject:     &subject,
		},
		ApplicationProperties: map[string]any{
			"stock_code": alert.Payload.StockCode,
			"market":     alert.Payload.Market,
		},
	}, nil
}

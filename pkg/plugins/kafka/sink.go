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

package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/segmentio/kafka-go"

	"github.com/redstarh/stocknews/newsfeed/pkg/core"
)

// Sink writes alerts to one Kafka topic keyed by stock code, so all alerts
// for a stock land on the same partition.
type Sink struct {
	name    string
	brokers []string
	topic   string
	writer  *kafka.Writer
	logger  *slog.Logger
}

func New(name string, brokers []string, topic string, logger *slog.Logger) *Sink {
	return &Sink{
		name:    name,
		brokers: brokers,
		topic:   topic,
		logger:  logger,
	}
}

func (s *Sink) Name() string { return s.name }
func (s *Sink) Type() string { return "kafka" }

func (s *Sink) Connect(ctx context.Context) error {
	if len(s.brokers) == 0 || s.topic == "" {
		return fmt.Errorf("kafka sink %s: brokers and topic are required", s.name)
	}
	s.writer = &kafka.Writer{
		Addr:                   kafka.TCP(s.brokers...),
		Topic:                  s.topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	s.logger.Info("kafka sink connected",
		"name", s.name,
		"brokers", strings.Join(s.brokers, ","),
		"topic", s.topic,
	)
	return nil
}

func (s *Sink) Disconnect(ctx context.Context) error {
	if s.writer != nil {
		return s.writer.Close()
	}
	return nil
}

func (s *Sink) Publish(ctx context.Context, alert core.Alert) error {
	if s.writer == nil {
		return fmt.Errorf("kafka sink %s: %w", s.name, core.ErrSinkUnavailable)
	}
	msg, err := message(alert)
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, msg)
}

func message(alert core.Alert) (kafka.Message, error) {
	body, err := alert.Encode()
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode alert: %w", err)
	}
	return kafka.Message{
		Key:   []byte(alert.Payload.StockCode),
		Value: body,
		Time:  alert.ReceivedAt,
		Headers: []kafka.Header{
			{Key: "alert_id", Value: []byte(alert.ID)},
			{Key: "market", Value: []byte(alert.Payload.Market)},
		},
	}, nil
}

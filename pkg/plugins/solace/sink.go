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

package solace

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"solace.dev/go/messaging"
	"solace.dev/go/messaging/pkg/solace"
	"solace.dev/go/messaging/pkg/solace/config"
	"solace.dev/go/messaging/pkg/solace/resource"

	"github.com/redstarh/stocknews/newsfeed/pkg/core"
)

const terminateGrace = 5 * time.Second

// Sink publishes alerts as direct messages. The publisher is created once
// per connection and reused for every alert.
type Sink struct {
	name      string
	host      string
	vpn       string
	username  string
	password  string
	topic     string
	service   solace.MessagingService
	publisher solace.DirectMessagePublisher
	mu        sync.Mutex
	logger    *slog.Logger
}

func New(name, host, vpn, username, password, topic string, logger *slog.Logger) *Sink {
	return &Sink{
		name:     name,
		host:     host,
		vpn:      vpn,
		username: username,
		password: password,
		topic:    topic,
		logger:   logger,
	}
}

func (s *Sink) Name() string { return s.name }
func (s *Sink) Type() string { return "solace" }

func (s *Sink) Connect(ctx context.Context) error {
	service, err := messaging.NewMessagingServiceBuilder().
		FromConfigurationProvider(config.ServicePropertyMap{
			config.TransportLayerPropertyHost:                s.host,
			config.ServicePropertyVPNName:                    s.vpn,
			config.AuthenticationPropertySchemeBasicUserName: s.username,
			config.AuthenticationPropertySchemeBasicPassword: s.password,
		}).Build()
	if err != nil {
		return fmt.Errorf("solace build: %w", err)
	}
	if err = service.Connect(); err != nil {
		return fmt.Errorf("solace connect: %w", err)
	}

	publisher, err := service.CreateDirectMessagePublisherBuilder().Build()
	if err != nil {
		service.Disconnect()
		return fmt.Errorf("solace publisher build: %w", err)
	}
	if err = publisher.Start(); err != nil {
		service.Disconnect()
		return fmt.Errorf("solace publisher start: %w", err)
	}

	s.mu.Lock()
	s.service, s.publisher = service, publisher
	s.mu.Unlock()

	s.logger.Info("solace sink connected", "name", s.name, "host", s.host, "topic", s.topic)
	return nil
}

func (s *Sink) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.publisher != nil {
		s.publisher.Terminate(terminateGrace)
		s.publisher = nil
	}
	if s.service != nil {
		err := s.service.Disconnect()
		s.service = nil
		return err
	}
	return nil
}

func (s *Sink) Publish(ctx context.Context, alert core.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.service == nil || s.publisher == nil {
		return fmt.Errorf("solace sink %s: %w", s.name, core.ErrSinkUnavailable)
	}

	body, err := alert.Encode()
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	msg, err := s.service.MessageBuilder().BuildWithByteArrayPayload(body)
	if err != nil {
		return fmt.Errorf("solace message build: %w", err)
	}
	return s.publisher.Publish(msg, resource.TopicOf(alert.Topic(s.topic)))
}

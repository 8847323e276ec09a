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

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redstarh/stocknews/newsfeed/pkg/config"
	"github.com/redstarh/stocknews/newsfeed/pkg/core"
	"github.com/redstarh/stocknews/newsfeed/pkg/plugins"
	"github.com/redstarh/stocknews/newsfeed/pkg/plugins/httpget"
	"github.com/redstarh/stocknews/newsfeed/pkg/plugins/httppost"
	"github.com/redstarh/stocknews/newsfeed/pkg/plugins/jms"
	"github.com/redstarh/stocknews/newsfeed/pkg/plugins/kafka"
	"github.com/redstarh/stocknews/newsfeed/pkg/plugins/mqtt"
	"github.com/redstarh/stocknews/newsfeed/pkg/plugins/mqtt5"
	"github.com/redstarh/stocknews/newsfeed/pkg/plugins/rabbitmq"
	"github.com/redstarh/stocknews/newsfeed/pkg/plugins/redis"
	"github.com/redstarh/stocknews/newsfeed/pkg/plugins/solace"
	"github.com/redstarh/stocknews/newsfeed/pkg/plugins/sse"
	"github.com/redstarh/stocknews/newsfeed/pkg/plugins/ws"
)

// settings is the free-form config map of one endpoint.
type settings map[string]string

func (s settings) required(key string) (string, error) {
	v := strings.TrimSpace(s[key])
	if v == "" {
		return "", fmt.Errorf("config.%s is required", key)
	}
	return v, nil
}

func (s settings) int(key string, def int) (int, error) {
	v := strings.TrimSpace(s[key])
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config.%s: %w", key, err)
	}
	return n, nil
}

func (s settings) qos(key string) (byte, error) {
	n, err := s.int(key, 1)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > 2 {
		return 0, fmt.Errorf("config.%s: qos must be 0, 1 or 2, got %d", key, n)
	}
	return byte(n), nil
}

func (s settings) bool(key string) (bool, error) {
	v := strings.TrimSpace(s[key])
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config.%s: %w", key, err)
	}
	return b, nil
}

func (s settings) duration(key string) (time.Duration, error) {
	v := strings.TrimSpace(s[key])
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config.%s: %w", key, err)
	}
	return d, nil
}

func newEntrypoint(ec config.EntrypointConfig, logger *slog.Logger) (core.Entrypoint, error) {
	logger = logger.With("entrypoint", ec.Name)
	switch ec.Type {
	case "http_get":
		return httpget.New(ec.Name, ec.Port, logger), nil
	case "http_post":
		return httppost.New(ec.Name, ec.Port, logger), nil
	case "sse":
		return sse.New(ec.Name, ec.Port, logger), nil
	case "websocket":
		return ws.New(ec.Name, ec.Port, logger), nil
	default:
		return nil, fmt.Errorf("unknown entrypoint type %q", ec.Type)
	}
}

func newSink(ec config.EndpointConfig, logger *slog.Logger) (core.Sink, error) {
	s := settings(ec.Config)
	logger = logger.With("sink", ec.Name)

	switch ec.Type {
	case "kafka":
		brokers, err := s.required("brokers")
		if err != nil {
			return nil, err
		}
		topic, err := s.required("topic")
		if err != nil {
			return nil, err
		}
		return kafka.New(ec.Name, strings.Split(brokers, ","), topic, logger), nil

	case "rabbitmq":
		url, err := s.required("url")
		if err != nil {
			return nil, err
		}
		queue, err := s.required("queue")
		if err != nil {
			return nil, err
		}
		return rabbitmq.New(ec.Name, url, s["exchange"], queue, s["routing_key"], logger), nil

	case "mqtt5":
		broker, err := s.required("broker_url")
		if err != nil {
			return nil, err
		}
		topic, err := s.required("topic")
		if err != nil {
			return nil, err
		}
		qos, err := s.qos("qos")
		if err != nil {
			return nil, err
		}
		return mqtt5.New(ec.Name, broker, topic, qos, logger), nil

	case "mqtt":
		broker, err := s.required("broker")
		if err != nil {
			return nil, err
		}
		topic, err := s.required("topic")
		if err != nil {
			return nil, err
		}
		qos, err := s.qos("qos")
		if err != nil {
			return nil, err
		}
		retained, err := s.bool("retained")
		if err != nil {
			return nil, err
		}
		return mqtt.New(ec.Name, broker, topic, qos, retained, logger), nil

	case "jms":
		url, err := s.required("url")
		if err != nil {
			return nil, err
		}
		queue, err := s.required("queue")
		if err != nil {
			return nil, err
		}
		return jms.New(ec.Name, url, queue, logger), nil

	case "solace":
		host, err := s.required("host")
		if err != nil {
			return nil, err
		}
		topic, err := s.required("topic")
		if err != nil {
			return nil, err
		}
		return solace.New(ec.Name, host, s["vpn"], s["username"], s["password"], topic, logger), nil

	case "redis":
		addr, err := s.required("addr")
		if err != nil {
			return nil, err
		}
		db, err := s.int("db", 0)
		if err != nil {
			return nil, err
		}
		limit, err := s.int("recent_limit", 0)
		if err != nil {
			return nil, err
		}
		ttl, err := s.duration("recent_ttl")
		if err != nil {
			return nil, err
		}
		return redis.New(ec.Name, redis.Options{
			Addr:        addr,
			Password:    s["password"],
			DB:          db,
			Channel:     s["channel"],
			RecentKey:   s["recent_key"],
			RecentLimit: limit,
			RecentTTL:   ttl,
		}, logger), nil

	default:
		return nil, fmt.Errorf("%w %q", core.ErrUnknownSink, ec.Type)
	}
}

// newRegistry builds every configured entrypoint and sink, reporting all
// configuration problems together.
func newRegistry(cfg *config.Config, logger *slog.Logger) (*plugins.Registry, error) {
	reg := plugins.NewRegistry(logger)
	var errs []error

	for _, ec := range cfg.Entrypoints {
		e, err := newEntrypoint(ec, logger)
		if err != nil {
			errs = append(errs, fmt.Errorf("entrypoint %s: %w", ec.Name, err))
			continue
		}
		reg.RegisterEntrypoint(e)
	}
	for _, ec := range cfg.Endpoints {
		s, err := newSink(ec, logger)
		if err != nil {
			errs = append(errs, fmt.Errorf("endpoint %s: %w", ec.Name, err))
			continue
		}
		reg.RegisterSink(s)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidConfig, errors.Join(errs...))
	}
	return reg, nil
}

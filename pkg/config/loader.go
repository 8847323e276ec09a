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
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/redstarh/stocknews/newsfeed/internal/fanout"
	"github.com/redstarh/stocknews/newsfeed/internal/logging"
	"github.com/redstarh/stocknews/newsfeed/internal/notify"
	"github.com/redstarh/stocknews/newsfeed/internal/session"
	"github.com/redstarh/stocknews/newsfeed/pkg/core"
)

const (
	PolicyFixed       = "fixed"
	PolicyExponential = "exponential"

	defaultHandshakeTimeoutMs = 10000
)

// Entrypoint and sink types understood by the daemon.
var (
	EntrypointTypes = []string{"http_get", "http_post", "sse", "websocket"}
	SinkTypes       = []string{"kafka", "rabbitmq", "mqtt5", "mqtt", "jms", "solace", "redis"}
)

type Config struct {
	Feed        FeedConfig         `yaml:"feed"`
	Logging     LoggingConfig      `yaml:"logging"`
	Forward     ForwardConfig      `yaml:"forward"`
	Entrypoints []EntrypointConfig `yaml:"entrypoints"`
	Endpoints   []EndpointConfig   `yaml:"endpoints"`
}

type FeedConfig struct {
	URL                string          `yaml:"url"`
	Capacity           int             `yaml:"capacity"`
	HandshakeTimeoutMs int             `yaml:"handshake_timeout_ms"`
	ReadTimeoutMs      int             `yaml:"read_timeout_ms"`
	CallbackRecovery   *bool           `yaml:"callback_recovery"`
	Reconnect          ReconnectConfig `yaml:"reconnect"`
}

type ReconnectConfig struct {
	Policy            string  `yaml:"policy"`
	DelayMs           int     `yaml:"delay_ms"`
	InitialIntervalMs int     `yaml:"initial_interval_ms"`
	MaxIntervalMs     int     `yaml:"max_interval_ms"`
	Multiplier        float64 `yaml:"multiplier"`
	JitterFactor      float64 `yaml:"jitter_factor"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ForwardConfig controls which breaking news alerts reach the sinks.
type ForwardConfig struct {
	MinScore         *float64 `yaml:"min_score"`
	Markets          []string `yaml:"markets"`
	DedupeSize       int      `yaml:"dedupe_size"`
	QueueSize        int      `yaml:"queue_size"`
	PublishTimeoutMs int      `yaml:"publish_timeout_ms"`
}

type EntrypointConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	Port int    `yaml:"port"`
}

type EndpointConfig struct {
	Name   string            `yaml:"name"`
	Type   string            `yaml:"type"`
	Config map[string]string `yaml:"config"`
}

// Load reads the YAML file at path, fills defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML and fills defaults without consulting the environment.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	f := &c.Feed
	if f.Capacity == 0 {
		f.Capacity = notify.DefaultCapacity
	}
	if f.HandshakeTimeoutMs == 0 {
		f.HandshakeTimeoutMs = defaultHandshakeTimeoutMs
	}
	if f.CallbackRecovery == nil {
		enabled := true
		f.CallbackRecovery = &enabled
	}

	r := &f.Reconnect
	if r.Policy == "" {
		r.Policy = PolicyFixed
	}
	if r.DelayMs == 0 {
		r.DelayMs = int(session.DefaultReconnectDelay / time.Millisecond)
	}
	if r.InitialIntervalMs == 0 {
		r.InitialIntervalMs = 1000
	}
	if r.MaxIntervalMs == 0 {
		r.MaxIntervalMs = 60000
	}
	if r.Multiplier == 0 {
		r.Multiplier = 2
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = logging.FormatJSON
	}

	if c.Forward.MinScore == nil {
		score := float64(fanout.DefaultMinScore)
		c.Forward.MinScore = &score
	}
	if c.Forward.DedupeSize == 0 {
		c.Forward.DedupeSize = fanout.DefaultDedupeSize
	}
	if c.Forward.QueueSize == 0 {
		c.Forward.QueueSize = fanout.DefaultQueueSize
	}
	if c.Forward.PublishTimeoutMs == 0 {
		c.Forward.PublishTimeoutMs = int(fanout.DefaultPublishTimeout / time.Millisecond)
	}
}

// Validate reports every problem at once, wrapped in core.ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Feed.URL == "" {
		add("feed.url is required")
	} else if u, err := url.Parse(c.Feed.URL); err != nil {
		add("feed.url: %v", err)
	} else if u.Scheme != "ws" && u.Scheme != "wss" {
		add("feed.url: scheme must be ws or wss, got %q", u.Scheme)
	}
	if c.Feed.Capacity < 1 || c.Feed.Capacity > notify.DefaultCapacity {
		add("feed.capacity must be between 1 and %d, got %d", notify.DefaultCapacity, c.Feed.Capacity)
	}
	if c.Feed.HandshakeTimeoutMs < 0 || c.Feed.ReadTimeoutMs < 0 {
		add("feed timeouts must not be negative")
	}

	r := c.Feed.Reconnect
	switch r.Policy {
	case PolicyFixed:
		if r.DelayMs < 0 {
			add("feed.reconnect.delay_ms must not be negative")
		}
	case PolicyExponential:
		if r.InitialIntervalMs < 0 || r.MaxIntervalMs < r.InitialIntervalMs {
			add("feed.reconnect: need 0 <= initial_interval_ms <= max_interval_ms")
		}
		if r.Multiplier < 1 {
			add("feed.reconnect.multiplier must be >= 1, got %v", r.Multiplier)
		}
		if r.JitterFactor < 0 || r.JitterFactor > 1 {
			add("feed.reconnect.jitter_factor must be within [0,1], got %v", r.JitterFactor)
		}
	default:
		add("feed.reconnect.policy: unknown policy %q", r.Policy)
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		add("logging.level: %v", err)
	}
	if f := strings.ToLower(c.Logging.Format); f != logging.FormatJSON && f != logging.FormatText {
		add("logging.format: unknown format %q", c.Logging.Format)
	}

	if c.Forward.DedupeSize < 1 || c.Forward.QueueSize < 1 {
		add("forward.dedupe_size and forward.queue_size must be positive")
	}
	if c.Forward.PublishTimeoutMs < 1 {
		add("forward.publish_timeout_ms must be positive, got %d", c.Forward.PublishTimeoutMs)
	}

	seen := make(map[string]bool)
	for i, e := range c.Entrypoints {
		if e.Name == "" {
			add("entrypoints[%d]: name is required", i)
		} else if seen[e.Name] {
			add("entrypoints[%d]: duplicate name %q", i, e.Name)
		}
		seen[e.Name] = true
		if !contains(EntrypointTypes, e.Type) {
			add("entrypoints[%d]: unknown type %q", i, e.Type)
		}
		if e.Port < 1 || e.Port > 65535 {
			add("entrypoints[%d]: port %d out of range", i, e.Port)
		}
	}

	seen = make(map[string]bool)
	for i, e := range c.Endpoints {
		if e.Name == "" {
			add("endpoints[%d]: name is required", i)
		} else if seen[e.Name] {
			add("endpoints[%d]: duplicate name %q", i, e.Name)
		}
		seen[e.Name] = true
		if !contains(SinkTypes, e.Type) {
			add("endpoints[%d]: %v %q", i, core.ErrUnknownSink, e.Type)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", core.ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (f FeedConfig) HandshakeTimeout() time.Duration {
	return time.Duration(f.HandshakeTimeoutMs) * time.Millisecond
}

func (f FeedConfig) ReadTimeout() time.Duration {
	return time.Duration(f.ReadTimeoutMs) * time.Millisecond
}

func (f FeedConfig) RecoverCallbacks() bool {
	return f.CallbackRecovery == nil || *f.CallbackRecovery
}

// ReconnectPolicy builds the session policy. Only "exponential" changes the
// fixed reconnect delay.
func (f FeedConfig) ReconnectPolicy() session.ReconnectPolicy {
	r := f.Reconnect
	if r.Policy == PolicyExponential {
		return session.ExponentialBackoff{
			InitialInterval: time.Duration(r.InitialIntervalMs) * time.Millisecond,
			MaxInterval:     time.Duration(r.MaxIntervalMs) * time.Millisecond,
			Multiplier:      r.Multiplier,
			JitterFactor:    r.JitterFactor,
		}
	}
	return session.FixedDelay(time.Duration(r.DelayMs) * time.Millisecond)
}

func (f ForwardConfig) PublishTimeout() time.Duration {
	return time.Duration(f.PublishTimeoutMs) * time.Millisecond
}

func (f ForwardConfig) Filter() fanout.Filter {
	filter := fanout.Filter{Markets: append([]string(nil), f.Markets...)}
	if f.MinScore != nil {
		filter.MinScore = *f.MinScore
	}
	return filter
}

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

// Package redis republishes alerts on the StockNews pub/sub channel layout
// and optionally keeps a bounded list of recent alerts per market.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/redstarh/stocknews/newsfeed/pkg/core"
)

const (
	DefaultChannel = "news_breaking_{market}"
	pingTimeout    = 5 * time.Second
)

type Options struct {
	Addr     string
	Password string
	DB       int
	// Channel may contain {market} and {stock_code}.
	Channel string
	// RecentKey, when set, names a sorted set (score = receive time) that
	// keeps the newest RecentLimit alerts.
	RecentKey   string
	RecentLimit int
	RecentTTL   time.Duration
}

type Sink struct {
	name   string
	opts   Options
	client *goredis.Client
	logger *slog.Logger
}

func New(name string, opts Options, logger *slog.Logger) *Sink {
	if opts.Channel == "" {
		opts.Channel = DefaultChannel
	}
	if opts.RecentKey != "" && opts.RecentLimit <= 0 {
		opts.RecentLimit = 100
	}
	return &Sink{name: name, opts: opts, logger: logger}
}

func (s *Sink) Name() string { return s.name }
func (s *Sink) Type() string { return "redis" }

func (s *Sink) Connect(ctx context.Context) error {
	client := goredis.NewClient(&goredis.Options{
		Addr:     s.opts.Addr,
		Password: s.opts.Password,
		DB:       s.opts.DB,
	})

	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("redis connection failed: %w", err)
	}
	s.client = client

	s.logger.Info("redis sink connected", "name", s.name, "addr", s.opts.Addr, "channel", s.opts.Channel)
	return nil
}

func (s *Sink) Disconnect(ctx context.Context) error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *Sink) Publish(ctx context.Context, alert core.Alert) error {
	if s.client == nil {
		return fmt.Errorf("redis sink %s: %w", s.name, core.ErrSinkUnavailable)
	}
	body, err := alert.Encode()
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Publish(ctx, alert.Topic(s.opts.Channel), body)
	if s.opts.RecentKey != "" {
		key := alert.Topic(s.opts.RecentKey)
		pipe.ZAdd(ctx, key, goredis.Z{
			Score:  float64(alert.ReceivedAt.UnixMilli()),
			Member: body,
		})
		pipe.ZRemRangeByRank(ctx, key, 0, int64(-s.opts.RecentLimit-1))
		if s.opts.RecentTTL > 0 {
			pipe.Expire(ctx, key, s.opts.RecentTTL)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Recent returns up to n stored alerts for key, newest first.
func (s *Sink) Recent(ctx context.Context, key string, n int64) ([]string, error) {
	if s.client == nil {
		return nil, fmt.Errorf("redis sink %s: %w", s.name, core.ErrSinkUnavailable)
	}
	return s.client.ZRevRange(ctx, key, 0, n-1).Result()
}

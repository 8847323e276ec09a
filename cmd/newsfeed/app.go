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
	"context"
	"log/slog"
	"os"
	"sort"
	"time"

	"go.uber.org/fx"

	"github.com/redstarh/stocknews/newsfeed/internal/fanout"
	"github.com/redstarh/stocknews/newsfeed/internal/feed"
	"github.com/redstarh/stocknews/newsfeed/internal/logging"
	"github.com/redstarh/stocknews/newsfeed/pkg/config"
	"github.com/redstarh/stocknews/newsfeed/pkg/plugins"
	"github.com/redstarh/stocknews/newsfeed/pkg/plugins/ws"
)

const sinkRetryInterval = 30 * time.Second

// ConfigPath is the file the watcher polls for hot reloads.
type ConfigPath string

func appOptions(cfg *config.Config, path ConfigPath) fx.Option {
	return fx.Options(
		fx.Supply(cfg, path),
		fx.Provide(
			ProvideLevel,
			ProvideLogger,
			ProvideRegistry,
			ProvideDispatcher,
			ProvideFeed,
		),
		fx.Invoke(RegisterLifecycle),
	)
}

func NewApp(cfg *config.Config, path ConfigPath) *fx.App {
	return fx.New(fx.NopLogger, appOptions(cfg, path))
}

func ProvideLevel(cfg *config.Config) (*slog.LevelVar, error) {
	lvl, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	v := new(slog.LevelVar)
	v.Set(lvl)
	return v, nil
}

func ProvideLogger(cfg *config.Config, lvl *slog.LevelVar) (*slog.Logger, error) {
	return logging.New(os.Stdout, cfg.Logging.Format, lvl)
}

func ProvideRegistry(cfg *config.Config, logger *slog.Logger) (*plugins.Registry, error) {
	return newRegistry(cfg, logger)
}

func ProvideDispatcher(cfg *config.Config, reg *plugins.Registry, logger *slog.Logger) (*fanout.Dispatcher, error) {
	return fanout.New(reg,
		fanout.WithQueueSize(cfg.Forward.QueueSize),
		fanout.WithDedupeSize(cfg.Forward.DedupeSize),
		fanout.WithFilter(cfg.Forward.Filter()),
		fanout.WithPublishTimeout(cfg.Forward.PublishTimeout()),
		fanout.WithLogger(logger.With(logging.Component("fanout"))),
	)
}

func ProvideFeed(cfg *config.Config, d *fanout.Dispatcher, logger *slog.Logger) *feed.Feed {
	dialer := ws.NewDialer(
		ws.WithHandshakeTimeout(cfg.Feed.HandshakeTimeout()),
		ws.WithReadTimeout(cfg.Feed.ReadTimeout()),
	)
	return feed.New(cfg.Feed.URL, dialer,
		feed.WithCapacity(cfg.Feed.Capacity),
		feed.WithLogger(logger.With(logging.Component("feed"))),
		feed.WithReconnectPolicy(cfg.Feed.ReconnectPolicy()),
		feed.WithCallbackRecovery(cfg.Feed.RecoverCallbacks()),
		feed.WithBreakingNewsHandler(d.OnBreakingNews),
	)
}

type lifecycleParams struct {
	fx.In

	Lifecycle  fx.Lifecycle
	Path       ConfigPath
	Level      *slog.LevelVar
	Logger     *slog.Logger
	Registry   *plugins.Registry
	Dispatcher *fanout.Dispatcher
	Feed       *feed.Feed
}

func RegisterLifecycle(p lifecycleParams) {
	var cancel context.CancelFunc

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			var runCtx context.Context
			runCtx, cancel = context.WithCancel(context.Background())

			connected := p.Registry.ConnectSinks(startCtx)
			p.Logger.Info("sinks connected", "healthy", connected, "total", len(p.Registry.Sinks()))
			for _, name := range unhealthySinks(p.Registry) {
				p.Logger.Warn("sink unavailable, retrying in background", "sink", name, "retry_interval", sinkRetryInterval)
			}

			go p.Dispatcher.Run(runCtx)
			go retrySinks(runCtx, p.Registry, p.Logger)
			p.Registry.StartEntrypoints(runCtx, p.Feed)

			watcher := config.NewWatcher(string(p.Path), reloadHandler(p.Level, p.Dispatcher, p.Logger), p.Logger)
			go watcher.Watch(runCtx)

			go func() {
				if err := p.Feed.Connect(runCtx); err != nil {
					p.Logger.Error("feed connect failed", logging.Err(err))
				}
			}()

			p.Logger.Info("newsfeed started", "config", string(p.Path))
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			if cancel != nil {
				cancel()
			}
			p.Registry.StopAll(stopCtx)
			err := p.Feed.Close()
			stats := p.Dispatcher.Stats()
			p.Logger.Info("newsfeed stopped",
				"published", stats.Published,
				"failed", stats.Failed,
				"dropped", stats.Dropped,
			)
			return err
		},
	})
}

// reloadHandler applies the hot-reloadable parts of a new config. Other
// changes take effect on restart.
func reloadHandler(lvl *slog.LevelVar, d *fanout.Dispatcher, logger *slog.Logger) func(*config.Config) {
	return func(cfg *config.Config) {
		if l, err := logging.ParseLevel(cfg.Logging.Level); err == nil {
			lvl.Set(l)
		}
		filter := cfg.Forward.Filter()
		d.SetFilter(filter)
		logger.Info("config applied",
			"level", lvl.Level().String(),
			"min_score", filter.MinScore,
			"markets", filter.Markets,
		)
	}
}

func unhealthySinks(reg *plugins.Registry) []string {
	var names []string
	for name := range reg.Sinks() {
		if !reg.IsSinkHealthy(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func retrySinks(ctx context.Context, reg *plugins.Registry, logger *slog.Logger) {
	ticker := time.NewTicker(sinkRetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := reg.ReconnectUnhealthy(ctx); n > 0 {
				logger.Info("sinks reconnected", "count", n)
			}
		}
	}
}

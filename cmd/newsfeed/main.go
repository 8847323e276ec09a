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
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/redstarh/stocknews/newsfeed/internal/logging"
	"github.com/redstarh/stocknews/newsfeed/pkg/config"
)

const (
	ServiceName       = "newsfeed"
	defaultConfigPath = "/etc/stocknews/newsfeed.yaml"
	shutdownTimeout   = 10 * time.Second
)

var version = "0.0.0"

func main() {
	if err := newCLI().Run(os.Args); err != nil {
		slog.Error("newsfeed exited", logging.Err(err))
		os.Exit(1)
	}
}

func newCLI() *cli.App {
	return &cli.App{
		Name:    ServiceName,
		Usage:   "StockNews real-time feed client and breaking news forwarder",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML configuration file",
				EnvVars: []string{"CONFIG_PATH"},
				Value:   defaultConfigPath,
			},
			&cli.StringSliceFlag{
				Name:  "env-file",
				Usage: "dotenv files loaded before the configuration",
			},
		},
		Before: func(c *cli.Context) error {
			return config.LoadEnvFiles(c.StringSlice("env-file")...)
		},
		Commands: []*cli.Command{
			runCmd(),
			checkConfigCmd(),
		},
	}
}

func runCmd() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "connect to the feed and serve the configured entrypoints",
		Action: func(c *cli.Context) error {
			path := c.String("config")
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}

			app := NewApp(cfg, ConfigPath(path))
			if err := app.Start(c.Context); err != nil {
				return err
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop

			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return app.Stop(ctx)
		},
	}
}

func checkConfigCmd() *cli.Command {
	return &cli.Command{
		Name:  "check-config",
		Usage: "validate the configuration and exit",
		Action: func(c *cli.Context) error {
			path := c.String("config")
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			if _, err := newRegistry(cfg, logging.Discard()); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "%s: ok (%d entrypoints, %d endpoints, reconnect %s)\n",
				path, len(cfg.Entrypoints), len(cfg.Endpoints), cfg.Feed.Reconnect.Policy)
			return nil
		},
	}
}

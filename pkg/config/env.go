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
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/redstarh/stocknews/newsfeed/pkg/core"
)

// overrides lists the settings that may come from the environment. Unset
// variables leave the file values alone.
type overrides struct {
	URL             string   `env:"STOCKNEWS_WS_URL"`
	Capacity        int      `env:"STOCKNEWS_FEED_CAPACITY"`
	ReconnectPolicy string   `env:"STOCKNEWS_RECONNECT_POLICY"`
	Markets         []string `env:"STOCKNEWS_FORWARD_MARKETS" envSeparator:","`
	LogLevel        string   `env:"LOG_LEVEL"`
	LogFormat       string   `env:"LOG_FORMAT"`
}

// LoadEnvFiles seeds the process environment from dotenv files. Variables
// already set win over file values.
func LoadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	if err := godotenv.Load(paths...); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

func ApplyEnv(cfg *Config) error {
	o, err := env.ParseAs[overrides]()
	if err != nil {
		return fmt.Errorf("%w: environment: %w", core.ErrInvalidConfig, err)
	}
	if o.URL != "" {
		cfg.Feed.URL = o.URL
	}
	if o.Capacity != 0 {
		cfg.Feed.Capacity = o.Capacity
	}
	if o.ReconnectPolicy != "" {
		cfg.Feed.Reconnect.Policy = o.ReconnectPolicy
	}
	if len(o.Markets) > 0 {
		cfg.Forward.Markets = o.Markets
	}
	if o.LogLevel != "" {
		cfg.Logging.Level = o.LogLevel
	}
	if o.LogFormat != "" {
		cfg.Logging.Format = o.LogFormat
	}
	return nil
}

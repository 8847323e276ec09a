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

package core

import (
	"fmt"
	"strings"
	"time"
)

// Title is the one-line label shown for a notification.
func (n Notification) Title() string {
	if title, ok := n.Message.Data["title"].(string); ok && title != "" {
		return title
	}
	if code, ok := n.Message.Data["stock_code"].(string); ok && code != "" {
		return n.Message.Type + ": " + code
	}
	return n.Message.Type
}

// FormatAge renders how long ago t happened relative to now.
func FormatAge(now, t time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%d min ago", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%d h ago", int(d/time.Hour))
	default:
		return t.Format("2006-01-02")
	}
}

// Topic expands {market} (lowercased) and {stock_code} in a sink topic or
// routing key pattern. The backend publishes on news_breaking_{market}.
func (a Alert) Topic(pattern string) string {
	return strings.NewReplacer(
		"{market}", strings.ToLower(a.Payload.Market),
		"{stock_code}", a.Payload.StockCode,
	).Replace(pattern)
}

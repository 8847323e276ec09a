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

package logging

import (
	"log/slog"

	"github.com/redstarh/stocknews/newsfeed/pkg/core"
)

// FrameLogger traces every frame crossing the feed connection at debug level.
type FrameLogger struct {
	logger *slog.Logger
}

func NewFrameLogger(logger *slog.Logger) *FrameLogger {
	return &FrameLogger{logger: logger}
}

func (f *FrameLogger) Inbound(msg core.InboundMessage, size int) {
	f.logger.Debug("frame",
		"direction", "inbound",
		"message_type", msg.Type,
		"has_data", msg.Data != nil,
		"payload_size", size,
	)
}

func (f *FrameLogger) Dropped(size int, err error) {
	f.logger.Debug("frame dropped",
		"direction", "inbound",
		"payload_size", size,
		"error", err,
	)
}

func (f *FrameLogger) Outbound(msgType string, size int) {
	f.logger.Debug("frame",
		"direction", "outbound",
		"message_type", msgType,
		"payload_size", size,
	)
}

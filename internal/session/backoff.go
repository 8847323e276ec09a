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

package session

import (
	"math"
	"math/rand/v2"
	"time"
)

// DefaultReconnectDelay is the pause between a dropped connection and the
// next connect attempt.
const DefaultReconnectDelay = 3000 * time.Millisecond

// ReconnectPolicy yields the delay before reconnect attempt n, where n counts
// consecutive failed or dropped sessions starting at 1.
type ReconnectPolicy interface {
	NextDelay(attempt int) time.Duration
}

// FixedDelay waits the same interval before every attempt, forever.
type FixedDelay time.Duration

func (f FixedDelay) NextDelay(int) time.Duration {
	if f <= 0 {
		return DefaultReconnectDelay
	}
	return time.Duration(f)
}

// ExponentialBackoff grows the delay by Multiplier per attempt, randomizes it
// by ±JitterFactor and caps it at MaxInterval.
type ExponentialBackoff struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	JitterFactor    float64
}

func (e ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	initial := e.InitialInterval
	if initial <= 0 {
		initial = time.Second
	}
	maxInterval := e.MaxInterval
	if maxInterval <= 0 {
		maxInterval = time.Minute
	}
	multiplier := e.Multiplier
	if multiplier < 1 {
		multiplier = 2
	}

	interval := float64(initial) * math.Pow(multiplier, float64(attempt-1))
	if interval > float64(maxInterval) {
		interval = float64(maxInterval)
	}
	if e.JitterFactor > 0 {
		interval *= 1 + (rand.Float64()*2-1)*e.JitterFactor
	}
	if interval > float64(maxInterval) {
		interval = float64(maxInterval)
	}
	return time.Duration(interval)
}

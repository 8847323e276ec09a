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

package routing

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redstarh/stocknews/newsfeed/internal/logging"
	"github.com/redstarh/stocknews/newsfeed/internal/notify"
	"github.com/redstarh/stocknews/newsfeed/pkg/core"
)

type recordingReplier struct {
	mu     sync.Mutex
	frames []string
	err    error
}

func (r *recordingReplier) WriteMessage(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.frames = append(r.frames, string(data))
	return nil
}

func (r *recordingReplier) sent() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.frames...)
}

type fixture struct {
	router   *Router
	store    *notify.Store
	log      *logging.MessageLog
	reply    *recordingReplier
	payloads []core.BreakingNewsPayload
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store: notify.NewStore(notify.DefaultCapacity),
		log:   logging.NewMessageLog(),
		reply: &recordingReplier{},
	}
	opts = append([]Option{WithBreakingNewsHandler(func(p core.BreakingNewsPayload) {
		f.payloads = append(f.payloads, p)
	})}, opts...)
	f.router = New(f.store, f.log, opts...)
	return f
}

const samsungNews = `{"type":"breaking_news","data":{"stock_code":"005930","stock_name":"Samsung Electronics",
	"title":"Samsung unveils HBM4","theme":"semiconductor","sentiment":"positive","news_score":92.5,
	"market":"KR","published_at":"2026-03-01T09:00:00+09:00"}}`

func TestPingRepliesPongOnly(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 3; i++ {
		out := f.router.HandleFrame([]byte(`{"type":"ping"}`), f.reply)
		assert.Equal(t, OutcomePong, out)
	}

	assert.Equal(t, []string{`{"type":"pong"}`, `{"type":"pong"}`, `{"type":"pong"}`}, f.reply.sent())
	assert.Zero(t, f.log.Len())
	assert.Zero(t, f.store.Len())
	assert.Empty(t, f.payloads)
}

func TestPingWithDataStillOnlyPongs(t *testing.T) {
	f := newFixture(t)
	out := f.router.HandleFrame([]byte(`{"type":"ping","data":{"title":"x"}}`), f.reply)

	assert.Equal(t, OutcomePong, out)
	assert.Len(t, f.reply.sent(), 1)
	assert.Zero(t, f.log.Len())
	assert.Zero(t, f.store.Len())
}

func TestPongWriteFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	f.reply.err = errors.New("broken pipe")

	assert.NotPanics(t, func() {
		assert.Equal(t, OutcomePong, f.router.HandleFrame([]byte(`{"type":"ping"}`), f.reply))
	})
	assert.Zero(t, f.log.Len())
}

func TestBreakingNewsBecomesNotification(t *testing.T) {
	clk := clock.NewMock()
	clk.Set(time.UnixMilli(1_772_000_000_000))
	f := newFixture(t, WithClock(clk))

	out := f.router.HandleFrame([]byte(samsungNews), f.reply)
	require.Equal(t, OutcomeNotified, out)

	require.Equal(t, 1, f.log.Len())
	ns := f.store.Notifications()
	require.Len(t, ns, 1)
	assert.Equal(t, int64(1_772_000_000_000), ns[0].Timestamp)
	assert.False(t, ns[0].Read)
	assert.NotEmpty(t, ns[0].ID)
	assert.Equal(t, core.TypeBreakingNews, ns[0].Message.Type)
	assert.Equal(t, "Samsung unveils HBM4", ns[0].Message.Data["title"])

	require.Len(t, f.payloads, 1)
	p := f.payloads[0]
	assert.Equal(t, "005930", p.StockCode)
	require.NotNil(t, p.StockName)
	assert.Equal(t, "Samsung Electronics", *p.StockName)
	assert.Equal(t, 92.5, p.NewsScore)
	assert.Equal(t, "KR", p.Market)
	assert.Empty(t, f.reply.sent())
}

func TestBreakingNewsNullableFields(t *testing.T) {
	f := newFixture(t)
	frame := `{"type":"breaking_news","data":{"stock_code":"AAPL","stock_name":null,"title":"Apple",
		"theme":null,"sentiment":null,"news_score":81,"market":"US","published_at":null}}`

	require.Equal(t, OutcomeNotified, f.router.HandleFrame([]byte(frame), f.reply))
	require.Len(t, f.payloads, 1)
	assert.Nil(t, f.payloads[0].StockName)
	assert.Nil(t, f.payloads[0].PublishedAt)
}

func TestMalformedFramesAreDropped(t *testing.T) {
	frames := []string{
		`not json at all`,
		`{"type":"breaking_news"`,
		`[1,2,3]`,
		`"breaking_news"`,
		`null`,
		`{}`,
		`{"type":""}`,
		`{"type":42}`,
		``,
	}
	for _, frame := range frames {
		t.Run(frame, func(t *testing.T) {
			f := newFixture(t)
			assert.NotPanics(t, func() {
				assert.Equal(t, OutcomeDropped, f.router.HandleFrame([]byte(frame), f.reply))
			})
			assert.Zero(t, f.log.Len())
			assert.Zero(t, f.store.Len())
			assert.Empty(t, f.payloads)
			assert.Empty(t, f.reply.sent())
		})
	}
}

func TestBreakingNewsWithoutUsableData(t *testing.T) {
	frames := []string{
		`{"type":"breaking_news"}`,
		`{"type":"breaking_news","data":null}`,
		`{"type":"breaking_news","data":"headline"}`,
		`{"type":"breaking_news","data":[1,2]}`,
		`{"type":"breaking_news","data":{"news_score":"high"}}`,
		`{"type":"breaking_news","data":{"stock_code":5930}}`,
	}
	for _, frame := range frames {
		t.Run(frame, func(t *testing.T) {
			f := newFixture(t)
			assert.NotPanics(t, func() {
				assert.Equal(t, OutcomeLogged, f.router.HandleFrame([]byte(frame), f.reply))
			})
			assert.Equal(t, 1, f.log.Len())
			assert.Zero(t, f.store.Len())
			assert.Empty(t, f.payloads)
		})
	}
}

func TestOtherTypesAreLoggedOnly(t *testing.T) {
	f := newFixture(t)
	frames := []string{
		`{"type":"connected","message":"StockNews WebSocket connected"}`,
		`{"type":"score_update","data":{"stock_code":"005930","score":90}}`,
		`{"type":"error","message":"max connections exceeded"}`,
		`{"type":"something_new","data":{"a":1}}`,
	}
	for _, frame := range frames {
		assert.Equal(t, OutcomeLogged, f.router.HandleFrame([]byte(frame), f.reply))
	}

	msgs := f.log.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, "StockNews WebSocket connected", msgs[0].Message)
	assert.Equal(t, "score_update", msgs[1].Type)
	assert.Equal(t, float64(90), msgs[1].Data["score"])
	assert.Equal(t, "max connections exceeded", msgs[2].Message)
	assert.Zero(t, f.store.Len())
	assert.Empty(t, f.payloads)
}

func TestNonStringMessageFieldIsIgnored(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, OutcomeLogged, f.router.HandleFrame([]byte(`{"type":"error","message":{"code":1}}`), f.reply))
	assert.Equal(t, "", f.log.Messages()[0].Message)
}

func TestFramesProcessedInArrivalOrder(t *testing.T) {
	f := newFixture(t)
	for _, title := range []string{"first", "second", "third"} {
		frame := `{"type":"breaking_news","data":{"title":"` + title + `"}}`
		f.router.HandleFrame([]byte(frame), f.reply)
	}

	ns := f.store.Notifications()
	require.Len(t, ns, 3)
	assert.Equal(t, "third", ns[0].Message.Data["title"])
	assert.Equal(t, "first", ns[2].Message.Data["title"])
	assert.Equal(t, "first", f.payloads[0].Title)
}

func TestCallbackPanicIsRecoveredByDefault(t *testing.T) {
	calls := 0
	store := notify.NewStore(notify.DefaultCapacity)
	log := logging.NewMessageLog()
	r := New(store, log, WithBreakingNewsHandler(func(p core.BreakingNewsPayload) {
		calls++
		if p.StockCode == "BAD" {
			panic("consumer bug")
		}
	}))
	reply := &recordingReplier{}

	assert.NotPanics(t, func() {
		out := r.HandleFrame([]byte(`{"type":"breaking_news","data":{"stock_code":"BAD"}}`), reply)
		assert.Equal(t, OutcomeNotified, out)
	})
	out := r.HandleFrame([]byte(`{"type":"breaking_news","data":{"stock_code":"GOOD"}}`), reply)

	assert.Equal(t, OutcomeNotified, out)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, store.Len())
	assert.Equal(t, 2, log.Len())
}

func TestCallbackPanicPropagatesWhenRecoveryDisabled(t *testing.T) {
	store := notify.NewStore(notify.DefaultCapacity)
	r := New(store, logging.NewMessageLog(),
		WithCallbackRecovery(false),
		WithBreakingNewsHandler(func(core.BreakingNewsPayload) { panic("consumer bug") }),
	)

	assert.PanicsWithValue(t, "consumer bug", func() {
		r.HandleFrame([]byte(`{"type":"breaking_news","data":{"stock_code":"BAD"}}`), &recordingReplier{})
	})
	assert.Equal(t, 1, store.Len())
}

func TestNoCallbackConfigured(t *testing.T) {
	store := notify.NewStore(notify.DefaultCapacity)
	r := New(store, logging.NewMessageLog())

	assert.Equal(t, OutcomeNotified, r.HandleFrame([]byte(samsungNews), &recordingReplier{}))
	assert.Equal(t, 1, store.Len())
}

func TestCustomHandler(t *testing.T) {
	f := newFixture(t)
	var seen []Frame
	f.router.Handle(core.TypeScoreUpdate, func(fr Frame) bool {
		seen = append(seen, fr)
		return false
	})

	f.router.HandleFrame([]byte(`{"type":"score_update","data":{"stock_code":"005930","score":77}}`), f.reply)

	require.Len(t, seen, 1)
	assert.JSONEq(t, `{"stock_code":"005930","score":77}`, string(seen[0].RawData))
	assert.Equal(t, 1, f.log.Len())
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "dropped", OutcomeDropped.String())
	assert.Equal(t, "pong", OutcomePong.String())
	assert.Equal(t, "logged", OutcomeLogged.String())
	assert.Equal(t, "notified", OutcomeNotified.String())
}

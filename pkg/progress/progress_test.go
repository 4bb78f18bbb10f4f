// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package progress

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/llmopt/pkg/llm"
	"gitlab.com/tozd/go/errors"
)

func TestCalculate(t *testing.T) {
	tests := []struct {
		name      string
		elapsed   time.Duration
		processed int
		total     int
		average   time.Duration
		remaining time.Duration
	}{
		{name: "nothing_processed", elapsed: 5 * time.Second, processed: 0, total: 10},
		{name: "halfway", elapsed: 10 * time.Second, processed: 5, total: 10, average: 2 * time.Second, remaining: 10 * time.Second},
		{name: "done", elapsed: 30 * time.Second, processed: 10, total: 10, average: 3 * time.Second},
		{name: "processed_exceeds_total", elapsed: 4 * time.Second, processed: 4, total: 2, average: time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Calculate(tt.elapsed, tt.processed, tt.total)
			assert.Equal(t, tt.average, e.Average)
			assert.Equal(t, tt.remaining, e.Remaining)
			assert.Equal(t, tt.processed > 0, e.Ready())
		})
	}
}

func TestReport(t *testing.T) {
	var buf bytes.Buffer
	ctx := zerolog.New(&buf).WithContext(context.Background())

	m := NewMetrics()
	r := NewReporter(m)
	start := time.Unix(1000, 0)
	r.now = func() time.Time { return start.Add(20 * time.Second) }

	t.Run("not_ready", func(t *testing.T) {
		buf.Reset()
		e := r.Report(ctx, start, 0, 40)
		assert.False(t, e.Ready())
		assert.Contains(t, buf.String(), "not enough files processed yet")
		assert.Equal(t, 0.0, testutil.ToFloat64(m.remaining))
	})

	t.Run("estimates_remaining", func(t *testing.T) {
		buf.Reset()
		e := r.Report(ctx, start, 10, 40)
		assert.Equal(t, 2*time.Second, e.Average)
		assert.Equal(t, 60*time.Second, e.Remaining)
		assert.Contains(t, buf.String(), "Progress: 10/40 (25%)")
		assert.Contains(t, buf.String(), `"remaining":"1m0s"`)
		assert.Equal(t, 60.0, testutil.ToFloat64(m.remaining))
	})

	t.Run("nil_metrics", func(t *testing.T) {
		r := NewReporter(nil)
		assert.NotPanics(t, func() { r.Report(ctx, time.Now(), 1, 2) })
	})
}

func TestMetricsObserver(t *testing.T) {
	m := NewMetrics()

	m.ObserveCall(nil)
	m.ObserveCall(nil)
	m.ObserveCall(errors.New("boom"))
	m.ObserveRetry(llm.KindThrottle, 2200*time.Millisecond)
	m.ObserveRetry(llm.KindTransient, 10*time.Second)
	m.ObserveRetry(llm.KindTransient, 10*time.Second)
	m.ObserveCacheHit()
	m.ObserveTokens(120)
	m.ObserveTokens(-1)
	m.ObserveFile(OutcomeCompleted)
	m.ObserveFile(OutcomeCompleted)
	m.ObserveFile(OutcomeFailed)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.calls.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.calls.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.retries.WithLabelValues(llm.KindThrottle.String())))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.retries.WithLabelValues(llm.KindTransient.String())))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheHits))
	assert.Equal(t, 120.0, testutil.ToFloat64(m.tokens))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.files.WithLabelValues(OutcomeCompleted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.files.WithLabelValues(OutcomeFailed)))
}

func TestWriteTextfile(t *testing.T) {
	m := NewMetrics()
	m.ObserveFile(OutcomeCompleted)

	path := filepath.Join(t.TempDir(), "textfile", "llmopt.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `llmopt_files_total{outcome="completed"} 1`)

	assert.NoError(t, m.WriteTextfile(""), "empty path is a no-op")
}

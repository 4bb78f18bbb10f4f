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
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/walteh/llmopt/pkg/llm"
	"gitlab.com/tozd/go/errors"
)

// 🏷️ Outcome labels for files_total
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
	OutcomeEmpty     = "empty"
)

// 📊 Metrics holds the run's collectors on a private registry. It satisfies
// llm.Observer so the client can report calls, retries and token use.
type Metrics struct {
	registry *prometheus.Registry

	files     *prometheus.CounterVec
	calls     *prometheus.CounterVec
	retries   *prometheus.CounterVec
	waits     *prometheus.HistogramVec
	cacheHits prometheus.Counter
	tokens    prometheus.Counter
	remaining prometheus.Gauge
}

var _ llm.Observer = (*Metrics)(nil)

// 🏭 NewMetrics registers all collectors on a fresh registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		files: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "llmopt_files_total",
			Help: "Files handled in this run by outcome",
		}, []string{"outcome"}),
		calls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "llmopt_service_calls_total",
			Help: "Transformation service calls by result",
		}, []string{"result"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "llmopt_retries_total",
			Help: "Retries by error kind",
		}, []string{"kind"}),
		waits: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llmopt_retry_wait_seconds",
			Help:    "Time slept before a retry",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s to ~64s
		}, []string{"kind"}),
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "llmopt_cache_hits_total",
			Help: "Prompts answered from the response cache",
		}),
		tokens: factory.NewCounter(prometheus.CounterOpts{
			Name: "llmopt_tokens_total",
			Help: "Tokens reported by the service",
		}),
		remaining: factory.NewGauge(prometheus.GaugeOpts{
			Name: "llmopt_estimated_seconds_remaining",
			Help: "Estimated seconds until the run finishes",
		}),
	}
}

// Registry exposes the private registry, mostly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveFile counts one file outcome
func (m *Metrics) ObserveFile(outcome string) {
	m.files.WithLabelValues(outcome).Inc()
}

// ObserveCall implements llm.Observer
func (m *Metrics) ObserveCall(err error) {
	if err != nil {
		m.calls.WithLabelValues("error").Inc()
		return
	}
	m.calls.WithLabelValues("ok").Inc()
}

// ObserveRetry implements llm.Observer
func (m *Metrics) ObserveRetry(kind llm.Kind, wait time.Duration) {
	m.retries.WithLabelValues(kind.String()).Inc()
	m.waits.WithLabelValues(kind.String()).Observe(wait.Seconds())
}

// ObserveCacheHit implements llm.Observer
func (m *Metrics) ObserveCacheHit() {
	m.cacheHits.Inc()
}

// ObserveTokens implements llm.Observer
func (m *Metrics) ObserveTokens(n int) {
	if n > 0 {
		m.tokens.Add(float64(n))
	}
}

// SetRemaining updates the remaining-time gauge
func (m *Metrics) SetRemaining(d time.Duration) {
	m.remaining.Set(d.Seconds())
}

// 💾 WriteTextfile dumps every metric in the node-exporter textfile format
func (m *Metrics) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Errorf("creating metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return errors.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}

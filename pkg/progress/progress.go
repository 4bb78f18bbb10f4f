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

// Package progress estimates time remaining for a run and exposes run
// metrics in the Prometheus text format.
package progress

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/walteh/llmopt/pkg/status"
)

// ⏱️ Estimate is the outcome of one Report call
type Estimate struct {
	Processed int
	Total     int
	Elapsed   time.Duration
	// Average is zero until at least one file has been processed
	Average   time.Duration
	Remaining time.Duration
}

// Ready reports whether enough files were processed to estimate
func (e Estimate) Ready() bool {
	return e.Processed > 0
}

// 📈 Reporter logs progress and keeps the remaining-time gauge current
type Reporter struct {
	metrics   *Metrics
	formatter status.RecordFormatter
	now       func() time.Time
}

// 🏭 NewReporter creates a reporter; metrics may be nil
func NewReporter(metrics *Metrics) *Reporter {
	return &Reporter{
		metrics:   metrics,
		formatter: status.NewDefaultRecordFormatter(),
		now:       time.Now,
	}
}

// Calculate computes the estimate without side effects
func Calculate(elapsed time.Duration, processed, total int) Estimate {
	e := Estimate{Processed: processed, Total: total, Elapsed: elapsed}
	if processed <= 0 {
		return e
	}
	e.Average = elapsed / time.Duration(processed)
	if left := total - processed; left > 0 {
		e.Remaining = e.Average * time.Duration(left)
	}
	return e
}

// Report logs the estimated time remaining given the run start and counts.
// It never affects control flow.
func (r *Reporter) Report(ctx context.Context, start time.Time, processed, total int) Estimate {
	logger := zerolog.Ctx(ctx)

	e := Calculate(r.now().Sub(start), processed, total)
	if r.metrics != nil {
		r.metrics.SetRemaining(e.Remaining)
	}

	if !e.Ready() {
		logger.Info().Int("total", total).Msg("not enough files processed yet to estimate time remaining")
		return e
	}

	logger.Info().
		Int("processed", processed).
		Int("total", total).
		Dur("average", e.Average).
		Str("remaining", e.Remaining.Round(time.Second).String()).
		Msg(r.formatter.FormatProgress(processed, total))
	return e
}

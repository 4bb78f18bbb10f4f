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

package operation

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog"
	"github.com/walteh/llmopt/pkg/chunk"
	"github.com/walteh/llmopt/pkg/log"
	"github.com/walteh/llmopt/pkg/partition"
	"github.com/walteh/llmopt/pkg/progress"
	"github.com/walteh/llmopt/pkg/state"
	"github.com/walteh/llmopt/pkg/status"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is the pool size when none is configured
const DefaultWorkers = 10

// 🔄 ContentProcessor turns a file's content into its replacement
type ContentProcessor interface {
	Process(ctx context.Context, content string) (string, error)
}

var _ ContentProcessor = (*chunk.Processor)(nil)

// 🔧 Options contains configuration for the executor
type Options struct {
	// Store records per-file outcomes
	Store status.Store
	// Processor transforms file content
	Processor ContentProcessor
	// Workers is the pool size, DefaultWorkers when zero
	Workers int
	// Output collects transformed content and is saved after each batch; optional
	Output *state.OutputSet
	// Metrics counts outcomes and is written to MetricsFile after each batch; optional
	Metrics     *progress.Metrics
	MetricsFile string
	// Reporter logs time remaining after each batch; optional
	Reporter *progress.Reporter
	// Console prints one line per file; optional
	Console *log.Logger
}

// 📋 Summary counts what a run did
type Summary struct {
	Total     int // files in all batches
	Skipped   int // in the resume set
	Completed int
	Failed    int
	Empty     int // transformed to empty output, left untouched
	// Interrupted files were in flight when the run was canceled and have no record
	Interrupted int
	Duration    time.Duration
}

// Processed is the number of files the run attempted
func (s Summary) Processed() int {
	return s.Completed + s.Failed + s.Empty
}

// Left is the number of pending files the run never reached
func (s Summary) Left() int {
	return s.Total - s.Skipped - s.Processed()
}

// ⚙️ Executor runs batches on a fixed-size worker pool
type Executor struct {
	opts Options
	now  func() time.Time
}

type counters struct {
	skipped     atomic.Int64
	completed   atomic.Int64
	failed      atomic.Int64
	empty       atomic.Int64
	interrupted atomic.Int64
}

func (c *counters) processed() int {
	return int(c.completed.Load() + c.failed.Load() + c.empty.Load())
}

// 🏭 New creates a new executor with the given options
func New(opts Options) (*Executor, error) {
	if opts.Store == nil {
		return nil, errors.Errorf("status store is required")
	}
	if opts.Processor == nil {
		return nil, errors.Errorf("processor is required")
	}
	if opts.Workers < 0 {
		return nil, errors.Errorf("workers must not be negative, got %d", opts.Workers)
	}
	if opts.Workers == 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Reporter == nil {
		opts.Reporter = progress.NewReporter(opts.Metrics)
	}
	return &Executor{opts: opts, now: time.Now}, nil
}

// 🏃 Run processes every batch and returns once all of them finish. Files in
// resume are skipped. Per-file failures are recorded in the store and never
// abort the run; the returned error is only set when the pool cannot start
// or ctx was canceled. Files cut off by cancellation are left unrecorded so
// every resume mode picks them up again.
func (e *Executor) Run(ctx context.Context, batches []partition.Batch, resume status.ResumeSet) (Summary, error) {
	logger := zerolog.Ctx(ctx)
	start := e.now()

	var summary Summary
	for _, b := range batches {
		summary.Total += len(b)
	}
	pending := summary.Total
	for _, b := range batches {
		for _, f := range b {
			if resume.Contains(f) {
				pending--
			}
		}
	}

	pool, err := ants.NewPool(e.opts.Workers, ants.WithOptions(ants.Options{
		Nonblocking: false,
		PanicHandler: func(p any) {
			logger.Error().Interface("panic", p).Msg("worker panic outside file processing")
		},
	}))
	if err != nil {
		return summary, errors.Errorf("creating worker pool: %w", err)
	}
	defer pool.Release()

	logger.Info().
		Int("batches", len(batches)).
		Int("files", summary.Total).
		Int("pending", pending).
		Int("workers", e.opts.Workers).
		Msg("starting run")

	var (
		wg    sync.WaitGroup
		count counters
	)

	for i, batch := range batches {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			e.runBatch(ctx, i, len(batches), batch, resume, &count)
			e.afterBatch(ctx, start, pending, &count)
		})
		if err != nil {
			wg.Done()
			logger.Error().Err(err).Int("batch", i+1).Msg("submitting batch")
		}
	}
	wg.Wait()

	// batches can finish their saves out of order
	if e.opts.Output != nil {
		if err := e.opts.Output.Save(context.WithoutCancel(ctx)); err != nil {
			logger.Error().Err(err).Msg("saving final output snapshot")
		}
	}

	summary.Skipped = int(count.skipped.Load())
	summary.Completed = int(count.completed.Load())
	summary.Failed = int(count.failed.Load())
	summary.Empty = int(count.empty.Load())
	summary.Interrupted = int(count.interrupted.Load())
	summary.Duration = e.now().Sub(start)

	logger.Info().
		Int("optimized", summary.Completed).
		Int("left", pending-summary.Processed()).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Int("interrupted", summary.Interrupted).
		Dur("duration", summary.Duration).
		Msg("run finished")

	if err := ctx.Err(); err != nil {
		return summary, errors.Errorf("run interrupted: %w", err)
	}
	return summary, nil
}

// 📦 runBatch processes one batch's files sequentially
func (e *Executor) runBatch(ctx context.Context, idx, total int, batch partition.Batch, resume status.ResumeSet, count *counters) {
	if e.opts.Console != nil {
		e.opts.Console.StartBatch(ctx, log.BatchOperation{Index: idx, Total: total, Files: len(batch)})
	}

	for _, path := range batch {
		if resume.Contains(path) {
			count.skipped.Add(1)
			e.observe(ctx, log.FileOperation{Path: path, Outcome: log.OutcomeSkipped})
			continue
		}
		if ctx.Err() != nil {
			return
		}

		op := e.processFile(ctx, path)
		switch op.Outcome {
		case log.OutcomeOptimized:
			count.completed.Add(1)
		case log.OutcomeEmpty:
			count.empty.Add(1)
		case log.OutcomeInterrupted:
			count.interrupted.Add(1)
		default:
			count.failed.Add(1)
		}
		e.observe(ctx, op)
	}
}

// 📝 processFile runs the read, transform, write and record steps for one
// file. Every failure becomes a failed record, except a transform cut off
// by cancellation, which is not recorded at all.
func (e *Executor) processFile(ctx context.Context, path string) (op log.FileOperation) {
	logger := zerolog.Ctx(ctx).With().Str("file", path).Logger()
	ctx = logger.WithContext(ctx)
	start := e.now()

	op = log.FileOperation{Path: path}
	fail := func(err error) log.FileOperation {
		op.Outcome = log.OutcomeFailed
		op.Err = err
		op.Duration = e.now().Sub(start)
		e.record(ctx, status.Failed(path, err))
		return op
	}

	defer func() {
		if p := recover(); p != nil {
			op = fail(errors.Errorf("panic: %v", p))
		}
	}()

	content, err := os.ReadFile(path)
	if err != nil {
		return fail(errors.Errorf("reading file: %w", err))
	}
	op.Chunks = len(chunk.Split(string(content), e.chunkLimit()))

	out, err := e.opts.Processor.Process(ctx, string(content))
	if err != nil {
		if interrupted(ctx, err) {
			logger.Debug().Err(err).Msg("transform interrupted, leaving file unrecorded")
			op.Outcome = log.OutcomeInterrupted
			op.Duration = e.now().Sub(start)
			return op
		}
		return fail(err)
	}

	if out == "" {
		logger.Warn().Msg("transformation produced no output, leaving file untouched")
		op.Outcome = log.OutcomeEmpty
		op.Duration = e.now().Sub(start)
		return op
	}

	if err := status.WriteFileAtomic(path, []byte(out), 0644); err != nil {
		return fail(errors.Errorf("writing file: %w", err))
	}

	if err := e.record(ctx, status.Completed(path)); err != nil {
		op.Outcome = log.OutcomeFailed
		op.Err = err
		op.Duration = e.now().Sub(start)
		return op
	}
	if e.opts.Output != nil {
		e.opts.Output.Put(path, out)
	}

	op.Outcome = log.OutcomeOptimized
	op.Duration = e.now().Sub(start)
	return op
}

func interrupted(ctx context.Context, err error) bool {
	if ctx.Err() == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (e *Executor) chunkLimit() int {
	if p, ok := e.opts.Processor.(*chunk.Processor); ok && p.Limit > 0 {
		return p.Limit
	}
	return chunk.DefaultLimit
}

// record upserts r even after ctx is canceled so in-flight outcomes persist
func (e *Executor) record(ctx context.Context, r status.Record) error {
	if err := e.opts.Store.Upsert(context.WithoutCancel(ctx), r); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("status", r.Status.String()).Msg("recording file status")
		return errors.Errorf("recording %s status: %w", r.Status, err)
	}
	return nil
}

func (e *Executor) observe(ctx context.Context, op log.FileOperation) {
	if e.opts.Console != nil {
		e.opts.Console.LogFileOperation(ctx, op)
	}
	if e.opts.Metrics == nil || op.Outcome == log.OutcomeInterrupted {
		return
	}
	switch op.Outcome {
	case log.OutcomeOptimized:
		e.opts.Metrics.ObserveFile(progress.OutcomeCompleted)
	case log.OutcomeEmpty:
		e.opts.Metrics.ObserveFile(progress.OutcomeEmpty)
	case log.OutcomeSkipped:
		e.opts.Metrics.ObserveFile(progress.OutcomeSkipped)
	default:
		e.opts.Metrics.ObserveFile(progress.OutcomeFailed)
	}
}

// 💾 afterBatch saves the output snapshot and the metrics textfile
// concurrently, then reports progress. Failures here are logged only.
func (e *Executor) afterBatch(ctx context.Context, start time.Time, pending int, count *counters) {
	logger := zerolog.Ctx(ctx)
	flushCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	if e.opts.Output != nil {
		g.Go(func() error {
			return e.opts.Output.Save(flushCtx)
		})
	}
	if e.opts.Metrics != nil && e.opts.MetricsFile != "" {
		g.Go(func() error {
			return e.opts.Metrics.WriteTextfile(e.opts.MetricsFile)
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("saving batch results")
	}

	e.opts.Reporter.Report(ctx, start, count.processed(), pending)
}

// String implements fmt.Stringer
func (s Summary) String() string {
	return fmt.Sprintf("%d files: %d optimized, %d failed, %d empty, %d skipped in %s",
		s.Total, s.Completed, s.Failed, s.Empty, s.Skipped, s.Duration.Round(time.Millisecond))
}

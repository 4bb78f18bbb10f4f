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

package main

import (
	"context"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/walteh/llmopt/pkg/chunk"
	"github.com/walteh/llmopt/pkg/config"
	"github.com/walteh/llmopt/pkg/llm"
	"github.com/walteh/llmopt/pkg/log"
	"github.com/walteh/llmopt/pkg/operation"
	"github.com/walteh/llmopt/pkg/progress"
	"github.com/walteh/llmopt/pkg/state"
	"github.com/walteh/llmopt/pkg/status"
	"gitlab.com/tozd/go/errors"
)

// runFlags override config file values when set
type runFlags struct {
	root        string
	outputDir   string
	workers     int
	batchSize   int
	resumeMode  string
	model       string
	metricsFile string
	noSnapshot  bool
}

func newRunCmd(root *rootOpts) *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Optimize every eligible file under the root directory",
		Long: `Run discovers eligible files, skips the ones already recorded by a previous
run, and sends the rest through the model in batches. Each file is rewritten
in place and its outcome is recorded as soon as it finishes, so an
interrupted run picks up where it stopped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := root.loadConfig(ctx)
			if err != nil {
				return startup(err)
			}
			if err := flags.apply(cmd, cfg); err != nil {
				return startup(err)
			}

			console := log.New(cmd.OutOrStdout(), *zerolog.Ctx(ctx))
			summary, err := runOptimize(log.NewContext(ctx, console), cfg)
			if err != nil {
				return err
			}
			if summary.Failed > 0 {
				console.Warningf("%d files failed, rerun with resume_mode=completed to retry them", summary.Failed)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.root, "root", "", "directory to scan")
	f.StringVar(&flags.outputDir, "output-dir", "", "directory for status files and the snapshot")
	f.IntVarP(&flags.workers, "workers", "w", 0, "number of batches processed concurrently")
	f.IntVarP(&flags.batchSize, "batch-size", "b", 0, "files per batch")
	f.StringVar(&flags.resumeMode, "resume-mode", "", "which recorded files to skip: completed or terminal")
	f.StringVar(&flags.model, "model", "", "model name")
	f.StringVar(&flags.metricsFile, "metrics-file", "", "write prometheus metrics to this textfile")
	f.BoolVar(&flags.noSnapshot, "no-snapshot", false, "do not write optimize.json")
	return cmd
}

// apply copies changed flags onto cfg and revalidates it
func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	changed := cmd.Flags().Changed
	if changed("root") {
		cfg.Root = f.root
	}
	if changed("output-dir") {
		cfg.OutputDir = f.outputDir
	}
	if changed("workers") {
		cfg.Workers = f.workers
	}
	if changed("batch-size") {
		cfg.BatchSize = f.batchSize
	}
	if changed("resume-mode") {
		cfg.ResumeMode = f.resumeMode
	}
	if changed("model") {
		cfg.LLM.Model = f.model
	}
	if changed("metrics-file") {
		cfg.MetricsFile = f.metricsFile
	}
	if changed("no-snapshot") {
		on := !f.noSnapshot
		cfg.Snapshot = &on
	}
	if err := cfg.Validate(); err != nil {
		return errors.Errorf("validating flags: %w", err)
	}
	return nil
}

// 🏃 runOptimize wires the pipeline from cfg and runs it to completion
func runOptimize(ctx context.Context, cfg *config.Config) (operation.Summary, error) {
	console := log.FromContext(ctx)
	logger := zerolog.Ctx(ctx)

	console.Header("optimizing " + absRoot(cfg.Root))

	if err := state.CheckWritable(ctx, cfg.OutputDir); err != nil {
		return operation.Summary{}, startup(err)
	}

	apiKey, err := cfg.APIKey()
	if err != nil {
		return operation.Summary{}, startup(err)
	}

	store, err := status.Open(ctx, cfg.StatusOptions())
	if err != nil {
		return operation.Summary{}, startup(errors.Errorf("opening status store: %w", err))
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn().Err(err).Msg("closing status store")
		}
	}()

	service, err := llm.NewOpenAIService(llm.OpenAIOptions{
		APIKey:  apiKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
	})
	if err != nil {
		return operation.Summary{}, startup(errors.Errorf("creating service: %w", err))
	}

	metrics := progress.NewMetrics()
	client, err := newClient(cfg, service, metrics)
	if err != nil {
		return operation.Summary{}, startup(err)
	}

	var output *state.OutputSet
	if cfg.SnapshotEnabled() {
		if output, err = state.New(cfg.OutputDir); err != nil {
			return operation.Summary{}, startup(err)
		}
		ctx = logger.With().Str("run_id", output.RunID()).Logger().WithContext(ctx)
	}

	exec, err := operation.New(operation.Options{
		Store: store,
		Processor: &chunk.Processor{
			Transformer: &llm.Prompter{Client: client, Prefix: cfg.LLM.PromptPrefix},
			Limit:       cfg.ChunkSize,
			RetryDelay:  cfg.ChunkDelay(),
			MaxAttempts: *cfg.Retry.MaxChunkAttempts,
		},
		Workers:     cfg.Workers,
		Output:      output,
		Metrics:     metrics,
		MetricsFile: cfg.MetricsFile,
		Console:     console,
	})
	if err != nil {
		return operation.Summary{}, startup(errors.Errorf("creating executor: %w", err))
	}

	summary, err := operation.Optimize(ctx, exec, cfg.Root, cfg.Filter(), cfg.Mode(), cfg.BatchSize)

	usage := client.Usage()
	counts := console.Counts()
	zerolog.Ctx(ctx).Info().
		Int64("calls", usage.Calls).
		Int64("tokens", usage.TotalTokens).
		Int("optimized", summary.Completed).
		Int("left", summary.Left()).
		Str("summary", summary.String()).
		Dict("outcomes", outcomeDict(counts)).
		Msg("run finished")

	if werr := metrics.WriteTextfile(cfg.MetricsFile); werr != nil {
		logger.Warn().Err(werr).Msg("writing metrics textfile")
	}
	if err != nil {
		if n := counts[log.OutcomeInterrupted]; n > 0 {
			console.Warningf("%d files interrupted, they stay pending for the next run", n)
		}
		return summary, errors.Errorf("optimizing %s: %w", cfg.Root, err)
	}

	console.LogNewline()
	console.Successf("%s", summary.String())
	return summary, nil
}

func newClient(cfg *config.Config, service llm.Service, observer llm.Observer) (*llm.Client, error) {
	cacheSize := *cfg.LLM.CacheSize
	if cacheSize == 0 {
		cacheSize = -1
	}
	client, err := llm.NewClient(llm.Options{
		Service:             service,
		Limiter:             llm.NewLimiter(cfg.Rate.RequestsPerMinute, *cfg.Rate.TokensPerMinute),
		CacheSize:           cacheSize,
		ThrottleMargin:      cfg.Retry.ThrottleMargin,
		TransientDelay:      cfg.TransientDelay(),
		MaxThrottleRetries:  *cfg.Retry.MaxThrottleRetries,
		MaxTransientRetries: *cfg.Retry.MaxTransientRetries,
		Observer:            observer,
	})
	if err != nil {
		return nil, errors.Errorf("creating client: %w", err)
	}
	return client, nil
}

// outcomeDict renders per-outcome file counts in a stable order
func outcomeDict(counts map[log.Outcome]int) *zerolog.Event {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	d := zerolog.Dict()
	for _, k := range keys {
		d.Int(k, counts[log.Outcome(k)])
	}
	return d
}

// absRoot resolves cfg.Root for display
func absRoot(root string) string {
	if abs, err := filepath.Abs(root); err == nil {
		return abs
	}
	return root
}

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

	"github.com/rs/zerolog"
	"github.com/walteh/llmopt/pkg/partition"
	"github.com/walteh/llmopt/pkg/status"
	"gitlab.com/tozd/go/errors"
)

// 🗺️ Plan is the work a run will do
type Plan struct {
	Files   []string
	Resume  status.ResumeSet
	Batches []partition.Batch
}

// Pending is the number of files the plan will attempt
func (p Plan) Pending() int {
	return len(partition.FilterResumed(p.Files, p.Resume))
}

// 🔍 PlanRun discovers files under root, loads the resume set and partitions
// the files into batches of batchSize
func PlanRun(ctx context.Context, store status.Store, root string, filter partition.Filter, mode status.ResumeMode, batchSize int) (Plan, error) {
	logger := zerolog.Ctx(ctx)

	files, err := partition.Discover(ctx, root, filter)
	if err != nil {
		return Plan{}, errors.Errorf("discovering files: %w", err)
	}

	resume, err := store.LoadResumeSet(ctx, mode)
	if err != nil {
		return Plan{}, errors.Errorf("loading resume set: %w", err)
	}

	plan := Plan{
		Files:   files,
		Resume:  resume,
		Batches: partition.Partition(files, batchSize),
	}

	logger.Debug().
		Int("files", len(files)).
		Int("resumed", len(files)-plan.Pending()).
		Int("batches", len(plan.Batches)).
		Msg("planned run")
	return plan, nil
}

// 🏃 Optimize plans and executes a run
func Optimize(ctx context.Context, exec *Executor, root string, filter partition.Filter, mode status.ResumeMode, batchSize int) (Summary, error) {
	plan, err := PlanRun(ctx, exec.opts.Store, root, filter, mode, batchSize)
	if err != nil {
		return Summary{}, err
	}
	return exec.Run(ctx, plan.Batches, plan.Resume)
}

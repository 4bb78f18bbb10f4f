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

// Package chunk splits file content into bounded slices and reassembles the
// transformed slices. Slices are cut at fixed character offsets with no
// regard for syntax, and reassembly is plain concatenation.
package chunk

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/walteh/llmopt/pkg/llm"
	"gitlab.com/tozd/go/errors"
)

const (
	// DefaultLimit is the largest chunk, in characters, sent in one request
	DefaultLimit = 30000
	// DefaultRetryDelay is the wait before a failed chunk is retried
	DefaultRetryDelay = 5 * time.Second
)

// ✂️ Split cuts content into contiguous slices of at most limit characters.
// Empty content yields no chunks. A limit below one is treated as one.
func Split(content string, limit int) []string {
	if limit < 1 {
		limit = 1
	}
	if content == "" {
		return nil
	}

	chunks := make([]string, 0, utf8.RuneCountInString(content)/limit+1)
	start, count := 0, 0
	for i := range content {
		if count == limit {
			chunks = append(chunks, content[start:i])
			start, count = i, 0
		}
		count++
	}
	return append(chunks, content[start:])
}

// 🧩 Join concatenates chunks in order with no separator
func Join(chunks []string) string {
	return strings.Join(chunks, "")
}

// 🔄 Transformer turns one chunk into its replacement
type Transformer interface {
	Transform(ctx context.Context, chunk string) (string, error)
}

// TransformFunc adapts a function to Transformer
type TransformFunc func(ctx context.Context, chunk string) (string, error)

func (f TransformFunc) Transform(ctx context.Context, chunk string) (string, error) {
	return f(ctx, chunk)
}

// ⚙️ Processor runs every chunk of a file through a Transformer in order
type Processor struct {
	Transformer Transformer
	// Limit is the chunk size, DefaultLimit when zero
	Limit int
	// RetryDelay is the wait between attempts on one chunk, DefaultRetryDelay when zero
	RetryDelay time.Duration
	// MaxAttempts caps attempts per chunk; zero retries until success
	MaxAttempts int
	// Sleep defaults to llm.Sleep
	Sleep llm.Sleeper
}

// Process splits content, transforms each chunk sequentially and joins the
// results. Errors wrapping llm.ErrInvalidInput are not retried.
func (p *Processor) Process(ctx context.Context, content string) (string, error) {
	limit := p.Limit
	if limit == 0 {
		limit = DefaultLimit
	}

	chunks := Split(content, limit)
	out := make([]string, len(chunks))
	for i, c := range chunks {
		res, err := p.processChunk(ctx, i, len(chunks), c)
		if err != nil {
			return "", err
		}
		out[i] = res
	}
	return Join(out), nil
}

func (p *Processor) processChunk(ctx context.Context, idx, total int, c string) (string, error) {
	logger := zerolog.Ctx(ctx)

	delay := p.RetryDelay
	if delay == 0 {
		delay = DefaultRetryDelay
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = llm.Sleep
	}

	for attempt := 1; ; attempt++ {
		res, err := p.Transformer.Transform(ctx, c)
		if err == nil {
			return res, nil
		}

		if errors.Is(err, llm.ErrInvalidInput) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", errors.Errorf("transforming chunk %d/%d: %w", idx+1, total, err)
		}
		if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
			return "", errors.Errorf("transforming chunk %d/%d after %d attempts: %w", idx+1, total, attempt, err)
		}

		logger.Error().Err(err).Int("chunk", idx+1).Int("attempt", attempt).Msg("chunk optimization error, retrying")
		if err := sleep(ctx, delay); err != nil {
			return "", errors.Errorf("transforming chunk %d/%d: %w", idx+1, total, err)
		}
	}
}

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

// Package partition finds eligible source files under a root and groups them
// into fixed-size batches for the executor.
package partition

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
	"github.com/walteh/llmopt/pkg/status"
	"gitlab.com/tozd/go/errors"
)

// DefaultBatchSize is the number of files handed to one worker at a time
const DefaultBatchSize = 10

// DefaultExtensions are the eligible file extensions when none are configured
var DefaultExtensions = []string{".php"}

// 📦 Batch is an ordered group of file paths processed by one worker
type Batch []string

// 🔍 Filter selects which files Discover returns
type Filter struct {
	// Extensions are matched case-insensitively against filepath.Ext; DefaultExtensions when empty
	Extensions []string
	// Ignore holds doublestar globs matched against slash paths relative to root
	Ignore []string
}

func (f Filter) extensions() map[string]struct{} {
	exts := f.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	out := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out[e] = struct{}{}
	}
	return out
}

// Validate checks every ignore pattern compiles
func (f Filter) Validate() error {
	for _, pattern := range f.Ignore {
		if !doublestar.ValidatePattern(pattern) {
			return errors.Errorf("invalid ignore pattern %q", pattern)
		}
	}
	return nil
}

// 🙈 ignored reports whether rel matches an ignore pattern
func (f Filter) ignored(ctx context.Context, rel string) bool {
	for _, pattern := range f.Ignore {
		matched, err := doublestar.Match(pattern, rel)
		if err != nil {
			zerolog.Ctx(ctx).Debug().Str("pattern", pattern).Str("path", rel).Err(err).Msg("error matching pattern")
			continue
		}
		if matched {
			zerolog.Ctx(ctx).Trace().Str("path", rel).Str("pattern", pattern).Msg("path ignored by pattern")
			return true
		}
	}
	return false
}

// 🌲 Discover walks root recursively and returns the absolute paths of
// eligible files. Ignored directories are not descended into, and
// unreadable paths below root are logged and skipped.
func Discover(ctx context.Context, root string, filter Filter) ([]string, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Errorf("resolving root %s: %w", root, err)
	}

	exts := filter.extensions()
	var files []string

	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == abs {
				return err
			}
			zerolog.Ctx(ctx).Warn().Err(err).Str("path", path).Msg("skipping unreadable path")
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(abs, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." && filter.ignored(ctx, rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if _, ok := exts[strings.ToLower(filepath.Ext(path))]; !ok {
			return nil
		}
		if filter.ignored(ctx, rel) {
			return nil
		}

		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, errors.Errorf("walking %s: %w", abs, err)
	}

	zerolog.Ctx(ctx).Debug().Str("root", abs).Int("files", len(files)).Msg("discovered files")
	return files, nil
}

// ✂️ FilterResumed drops paths already present in the resume set, keeping order
func FilterResumed(files []string, resume status.ResumeSet) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		if !resume.Contains(f) {
			out = append(out, f)
		}
	}
	return out
}

// 📦 Partition groups files into contiguous batches of size, the last one
// possibly shorter. A size below one is treated as one.
func Partition(files []string, size int) []Batch {
	if size < 1 {
		size = 1
	}
	if len(files) == 0 {
		return nil
	}

	batches := make([]Batch, 0, (len(files)+size-1)/size)
	for start := 0; start < len(files); start += size {
		end := start + size
		if end > len(files) {
			end = len(files)
		}
		batch := make(Batch, end-start)
		copy(batch, files[start:end])
		batches = append(batches, batch)
	}
	return batches
}

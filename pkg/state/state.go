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

// Package state holds the per-run output snapshot and the output directory
// checks made before a run starts.
package state

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/walteh/llmopt/pkg/status"
	"gitlab.com/tozd/go/errors"
)

const (
	// SnapshotFile is the name of the output dump in the output directory
	SnapshotFile = "optimize.json"
	// SchemaVersion is stamped on every snapshot
	SchemaVersion = "1.0.0"
)

// 📸 Snapshot is the on-disk shape of SnapshotFile
type Snapshot struct {
	SchemaVersion string            `json:"schema_version"`
	RunID         string            `json:"run_id"`
	LastUpdated   time.Time         `json:"last_updated"`
	Files         map[string]string `json:"files"`
}

// 🗃️ OutputSet collects the transformed content of every file completed in
// this run. It is informational only; the status store decides resumption.
type OutputSet struct {
	mu    sync.Mutex
	runID string
	path  string
	files map[string]string
	gen   uint64 // bumped on every Put
	now   func() time.Time

	// saveMu orders Save calls so an older copy never lands after a newer one
	saveMu  sync.Mutex
	saved   uint64
	written bool
}

// 🏭 New creates an empty set that saves to dir/optimize.json
func New(dir string) (*OutputSet, error) {
	if dir == "" {
		return nil, errors.Errorf("output directory is required")
	}
	return &OutputSet{
		runID: uuid.NewString(),
		path:  filepath.Join(dir, SnapshotFile),
		files: make(map[string]string),
		now:   time.Now,
	}, nil
}

// RunID identifies this run in logs and the snapshot
func (s *OutputSet) RunID() string {
	return s.runID
}

// Path returns the snapshot location
func (s *OutputSet) Path() string {
	return s.path
}

// Put records the final content for path, replacing any earlier value
func (s *OutputSet) Put(path, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path] = content
	s.gen++
}

// Get returns the content stored for path
func (s *OutputSet) Get(path string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.files[path]
	return c, ok
}

// Len returns the number of stored files
func (s *OutputSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

// 💾 Save writes the whole set to the snapshot file atomically. Concurrent
// calls are serialized and a call that has nothing newer than the last write
// returns without touching the file.
func (s *OutputSet) Save(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	gen := s.gen
	if s.written && gen == s.saved {
		s.mu.Unlock()
		return nil
	}
	snap := Snapshot{
		SchemaVersion: SchemaVersion,
		RunID:         s.runID,
		LastUpdated:   s.now().UTC(),
		Files:         make(map[string]string, len(s.files)),
	}
	for k, v := range s.files {
		snap.Files[k] = v
	}
	s.mu.Unlock()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(snap); err != nil {
		return errors.Errorf("encoding snapshot: %w", err)
	}

	if err := status.WriteFileAtomic(s.path, buf.Bytes(), 0644); err != nil {
		return errors.Errorf("writing snapshot: %w", err)
	}
	s.saved, s.written = gen, true

	zerolog.Ctx(ctx).Debug().Str("path", s.path).Int("files", len(snap.Files)).Msg("snapshot saved")
	return nil
}

// 📖 LoadSnapshot reads a snapshot written by Save
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Errorf("reading snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errors.Errorf("parsing snapshot: %w", err)
	}
	return &snap, nil
}

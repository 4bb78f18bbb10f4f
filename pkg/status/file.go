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

package status

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

const (
	// CompletedListFile holds one completed path per line
	CompletedListFile = "optimized.txt"
	// StatusFile maps path to {status, reason}
	StatusFile = "optimization_status.json"
	// LockFile is flocked for as long as a FileStore is open
	LockFile = StatusFile + ".lock"
)

// ErrStoreLocked is returned by OpenFileStore when another process holds the directory
var ErrStoreLocked = errors.Base("status directory is locked by another process")

// 📄 fileEntry is the on-disk shape of one entry in StatusFile
type fileEntry struct {
	Status    Status     `json:"status"`
	Reason    *string    `json:"reason"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// 🗂️ FileStore keeps records in two flat files in one directory: a list of
// completed paths and a JSON status map. Both are rewritten atomically on
// every upsert. The directory is flocked from open to close; the OS drops
// the lock if the process dies.
type FileStore struct {
	mu       sync.Mutex
	lock     *flock.Flock
	dir      string
	records  map[string]Record
	now      func() time.Time
	listPath string
	jsonPath string
}

// 🏭 OpenFileStore loads the store from dir, creating dir if needed
func OpenFileStore(ctx context.Context, dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.Errorf("status directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Errorf("creating status directory: %w", err)
	}

	lock := flock.New(filepath.Join(dir, LockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, errors.Errorf("locking status directory: %w", err)
	}
	if !locked {
		return nil, errors.Errorf("%w: %s", ErrStoreLocked, dir)
	}

	s := &FileStore{
		lock:     lock,
		dir:      filepath.Clean(dir),
		records:  make(map[string]Record),
		now:      time.Now,
		listPath: filepath.Join(dir, CompletedListFile),
		jsonPath: filepath.Join(dir, StatusFile),
	}
	if err := s.load(ctx); err != nil {
		lock.Unlock()
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load(ctx context.Context) error {
	logger := zerolog.Ctx(ctx)

	list, err := os.ReadFile(s.listPath)
	if err != nil && !os.IsNotExist(err) {
		return errors.Errorf("reading completed list: %w", err)
	}
	scanner := bufio.NewScanner(bytes.NewReader(list))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		path := strings.TrimSpace(scanner.Text())
		if path == "" {
			continue
		}
		s.records[path] = Record{Path: path, Status: StatusCompleted}
	}
	if err := scanner.Err(); err != nil {
		return errors.Errorf("parsing completed list: %w", err)
	}

	data, err := os.ReadFile(s.jsonPath)
	if err != nil && !os.IsNotExist(err) {
		return errors.Errorf("reading status file: %w", err)
	}
	if len(bytes.TrimSpace(data)) > 0 {
		entries := map[string]fileEntry{}
		if err := json.Unmarshal(data, &entries); err != nil {
			return errors.Errorf("parsing status file: %w", err)
		}
		for path, e := range entries {
			r := Record{Path: path, Status: e.Status}
			if e.Reason != nil {
				r.Reason = *e.Reason
			}
			if e.UpdatedAt != nil {
				r.UpdatedAt = *e.UpdatedAt
			}
			s.records[path] = r
		}
	}

	logger.Debug().Str("dir", s.dir).Int("records", len(s.records)).Msg("loaded status files")
	return nil
}

// LoadResumeSet implements Store
func (s *FileStore) LoadResumeSet(ctx context.Context, mode ResumeMode) (ResumeSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := ResumeSet{}
	for path, r := range s.records {
		if mode.Includes(r.Status) {
			set[path] = struct{}{}
		}
	}
	return set, nil
}

// Upsert implements Store
func (s *FileStore) Upsert(ctx context.Context, r Record) error {
	r, err := r.normalize(s.now())
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.records[r.Path]
	s.records[r.Path] = r
	if err := s.save(ctx); err != nil {
		if had {
			s.records[r.Path] = prev
		} else {
			delete(s.records, r.Path)
		}
		return errors.Errorf("saving status for %s: %w", r.Path, err)
	}
	return nil
}

// Get implements Store
func (s *FileStore) Get(ctx context.Context, path string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[path]
	return r, ok, nil
}

// List implements Store
func (s *FileStore) List(ctx context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	return sortRecords(out), nil
}

// Close implements Store; it releases the directory lock
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.lock.Unlock(); err != nil {
		return errors.Errorf("unlocking status directory: %w", err)
	}
	return nil
}

// 💾 save writes both files. Callers hold s.mu.
func (s *FileStore) save(ctx context.Context) error {
	records := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		records = append(records, r)
	}
	sortRecords(records)

	var list bytes.Buffer
	entries := make(map[string]fileEntry, len(records))
	for _, r := range records {
		e := fileEntry{Status: r.Status}
		if r.Status == StatusFailed {
			reason := r.Reason
			e.Reason = &reason
		}
		if !r.UpdatedAt.IsZero() {
			ts := r.UpdatedAt
			e.UpdatedAt = &ts
		}
		entries[r.Path] = e
		if r.Status == StatusCompleted {
			list.WriteString(r.Path)
			list.WriteByte('\n')
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(entries); err != nil {
		return errors.Errorf("encoding status file: %w", err)
	}

	if err := WriteFileAtomic(s.jsonPath, buf.Bytes(), 0644); err != nil {
		return err
	}
	if err := WriteFileAtomic(s.listPath, list.Bytes(), 0644); err != nil {
		return err
	}

	zerolog.Ctx(ctx).Trace().Int("records", len(records)).Msg("status files saved")
	return nil
}

// ⚛️ WriteFileAtomic writes content to a temp file in the same directory,
// syncs it and renames it over path, preserving an existing file's mode
func WriteFileAtomic(path string, content []byte, perm os.FileMode) error {
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		os.Remove(tmpPath)
		return errors.Errorf("setting temp file mode: %w", err)
	}

	// Rename temp file to target (atomic operation)
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath) // Clean up temp file
		return errors.Errorf("renaming temp file: %w", err)
	}
	return nil
}

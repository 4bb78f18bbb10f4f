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
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// 📊 Status is the processing outcome of one file
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// String returns a string representation of Status
func (s Status) String() string {
	return string(s)
}

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether s ends a file's processing
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// 📄 Record is the persisted outcome of processing one file
type Record struct {
	Path      string    `json:"path"`             // absolute file path, the record key
	Status    Status    `json:"status"`           // processing outcome
	Reason    string    `json:"reason,omitempty"` // only set when failed
	UpdatedAt time.Time `json:"updated_at"`       // when the record was last written
}

// Completed builds a completed record for path
func Completed(path string) Record {
	return Record{Path: path, Status: StatusCompleted}
}

// Failed builds a failed record for path with err as the reason
func Failed(path string, err error) Record {
	reason := "unknown error"
	if err != nil {
		reason = err.Error()
	}
	return Record{Path: path, Status: StatusFailed, Reason: reason}
}

// normalize validates r and enforces that only failed records carry a reason
func (r Record) normalize(now time.Time) (Record, error) {
	if r.Path == "" {
		return r, errors.Errorf("record path is required")
	}
	if !r.Status.Valid() {
		return r, errors.Errorf("invalid status %q for %s", r.Status, r.Path)
	}
	if r.Status != StatusFailed {
		r.Reason = ""
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = now
	}
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r, nil
}

// 🔁 ResumeMode selects which records count as already handled
type ResumeMode string

const (
	// ResumeCompleted skips only completed files
	ResumeCompleted ResumeMode = "completed"
	// ResumeTerminal skips completed and failed files
	ResumeTerminal ResumeMode = "terminal"
)

// Includes reports whether a file with status s should be skipped
func (m ResumeMode) Includes(s Status) bool {
	if m == ResumeTerminal {
		return s.IsTerminal()
	}
	return s == StatusCompleted
}

// 📋 ResumeSet is the set of file paths skipped by a run
type ResumeSet map[string]struct{}

// Contains reports whether path is in the set
func (s ResumeSet) Contains(path string) bool {
	_, ok := s[path]
	return ok
}

// Sorted returns the paths in lexical order
func (s ResumeSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// 💾 Store is the durable mapping of file path to Record.
//
// Upsert is safe for concurrent use. Writes to the same path are last write
// wins, and a returned nil error means the record survives a restart.
type Store interface {
	// LoadResumeSet returns every path the mode considers handled
	LoadResumeSet(ctx context.Context, mode ResumeMode) (ResumeSet, error)
	// Upsert writes or replaces the record for r.Path
	Upsert(ctx context.Context, r Record) error
	// Get returns the record for path, if any
	Get(ctx context.Context, path string) (Record, bool, error)
	// List returns all records ordered by path
	List(ctx context.Context) ([]Record, error)
	// Close releases the backend
	Close() error
}

// 🔌 Backend names accepted by Open
const (
	BackendFile     = "file"
	BackendBadger   = "badger"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// 🔧 Options selects and configures a Store backend
type Options struct {
	Backend string // one of the Backend* names, BackendFile when empty
	Dir     string // directory for the file backend and default badger location
	Path    string // badger directory, Dir/status.badger when empty
	DSN     string // postgres connection string
	Table   string // postgres table, optimization_status when empty
	Addr    string // redis address
	Prefix  string // redis key prefix, llmopt when empty
}

// 🏭 Open creates the configured Store
func Open(ctx context.Context, opts Options) (Store, error) {
	zerolog.Ctx(ctx).Debug().Str("backend", opts.Backend).Msg("opening status store")

	switch opts.Backend {
	case "", BackendFile:
		return OpenFileStore(ctx, opts.Dir)
	case BackendBadger:
		return OpenBadgerStore(ctx, BadgerOptions{Path: opts.Path, Dir: opts.Dir})
	case BackendPostgres:
		return OpenPostgresStore(ctx, opts.DSN, opts.Table)
	case BackendRedis:
		return OpenRedisStore(ctx, opts.Addr, opts.Prefix)
	default:
		return nil, errors.Errorf("unknown status backend %q", opts.Backend)
	}
}

func sortRecords(records []Record) []Record {
	sort.Slice(records, func(i, j int) bool { return records[i].Path < records[j].Path })
	return records
}

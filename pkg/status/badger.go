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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

const badgerKeyPrefix = "status/"

// 🔧 BadgerOptions configures a BadgerStore
type BadgerOptions struct {
	Path     string // database directory, Dir/status.badger when empty
	Dir      string
	InMemory bool // no disk persistence, for tests
}

// 🦡 BadgerStore keeps one JSON record per key in an embedded badger database
type BadgerStore struct {
	db  *badger.DB
	now func() time.Time
}

// badgerLogger forwards badger's internal logging to zerolog
type badgerLogger struct {
	logger *zerolog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Trace().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// 🏭 OpenBadgerStore opens (or creates) the database
func OpenBadgerStore(ctx context.Context, opts BadgerOptions) (*BadgerStore, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		path := opts.Path
		if path == "" {
			if opts.Dir == "" {
				return nil, errors.Errorf("badger path or status directory is required")
			}
			path = filepath.Join(opts.Dir, "status.badger")
		}
		if err := os.MkdirAll(path, 0750); err != nil {
			return nil, errors.Errorf("creating badger directory %s: %w", path, err)
		}
		bopts = badger.DefaultOptions(path).WithSyncWrites(true)
	}

	logger := zerolog.Ctx(ctx).With().Str("component", "badger").Logger()
	bopts = bopts.WithNumVersionsToKeep(1).WithLogger(&badgerLogger{logger: &logger})

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, errors.Errorf("opening badger database: %w", err)
	}
	return &BadgerStore{db: db, now: time.Now}, nil
}

func badgerKey(path string) []byte {
	return []byte(badgerKeyPrefix + path)
}

// LoadResumeSet implements Store
func (s *BadgerStore) LoadResumeSet(ctx context.Context, mode ResumeMode) (ResumeSet, error) {
	records, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	set := ResumeSet{}
	for _, r := range records {
		if mode.Includes(r.Status) {
			set[r.Path] = struct{}{}
		}
	}
	return set, nil
}

// Upsert implements Store
func (s *BadgerStore) Upsert(ctx context.Context, r Record) error {
	r, err := r.normalize(s.now())
	if err != nil {
		return err
	}
	val, err := json.Marshal(r)
	if err != nil {
		return errors.Errorf("encoding record for %s: %w", r.Path, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(r.Path), val)
	})
	if err != nil {
		return errors.Errorf("writing record for %s: %w", r.Path, err)
	}
	return nil
}

// Get implements Store
func (s *BadgerStore) Get(ctx context.Context, path string) (Record, bool, error) {
	var r Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(path))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &r)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, errors.Errorf("reading record for %s: %w", path, err)
	}
	return r, true, nil
}

// List implements Store
func (s *BadgerStore) List(ctx context.Context) ([]Record, error) {
	var out []Record
	prefix := []byte(badgerKeyPrefix)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var r Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			}); err != nil {
				return errors.Errorf("decoding %s: %w", it.Item().Key(), err)
			}
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Errorf("listing records: %w", err)
	}
	return sortRecords(out), nil
}

// Close implements Store
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

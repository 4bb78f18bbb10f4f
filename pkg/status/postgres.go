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
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// DefaultTable is the postgres table used when none is configured
const DefaultTable = "optimization_status"

// 🐘 PostgresStore keeps one row per file
type PostgresStore struct {
	db    *pgxpool.Pool
	table string
	now   func() time.Time
}

// 🏭 OpenPostgresStore connects, pings and creates the table if missing
func OpenPostgresStore(ctx context.Context, dsn, table string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.Errorf("postgres dsn is required")
	}
	if table == "" {
		table = DefaultTable
	}

	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Errorf("creating postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.Ping(pingCtx); err != nil {
		db.Close()
		return nil, errors.Errorf("pinging postgres: %w", err)
	}

	s := &PostgresStore{db: db, table: pgx.Identifier{table}.Sanitize(), now: time.Now}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	zerolog.Ctx(ctx).Debug().Str("table", table).Msg("postgres status store ready")
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS ` + s.table + ` (
		file_path  TEXT PRIMARY KEY,
		status     TEXT NOT NULL,
		reason     TEXT,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`
	if _, err := s.db.Exec(ctx, query); err != nil {
		return errors.Errorf("creating status table: %w", err)
	}
	return nil
}

// LoadResumeSet implements Store
func (s *PostgresStore) LoadResumeSet(ctx context.Context, mode ResumeMode) (ResumeSet, error) {
	statuses := []string{string(StatusCompleted)}
	if mode == ResumeTerminal {
		statuses = append(statuses, string(StatusFailed))
	}

	rows, err := s.db.Query(ctx, `SELECT file_path FROM `+s.table+` WHERE status = ANY($1)`, statuses)
	if err != nil {
		return nil, errors.Errorf("querying resume set: %w", err)
	}
	paths, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, errors.Errorf("reading resume set: %w", err)
	}

	set := make(ResumeSet, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return set, nil
}

// Upsert implements Store
func (s *PostgresStore) Upsert(ctx context.Context, r Record) error {
	r, err := r.normalize(s.now())
	if err != nil {
		return err
	}

	var reason *string
	if r.Status == StatusFailed {
		reason = &r.Reason
	}

	query := `INSERT INTO ` + s.table + ` (file_path, status, reason, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (file_path) DO UPDATE
		SET status = EXCLUDED.status, reason = EXCLUDED.reason, updated_at = EXCLUDED.updated_at`

	if _, err := s.db.Exec(ctx, query, r.Path, string(r.Status), reason, r.UpdatedAt); err != nil {
		return errors.Errorf("upserting record for %s: %w", r.Path, err)
	}
	return nil
}

// Get implements Store
func (s *PostgresStore) Get(ctx context.Context, path string) (Record, bool, error) {
	rows, err := s.db.Query(ctx, `SELECT file_path, status, reason, updated_at FROM `+s.table+` WHERE file_path = $1`, path)
	if err != nil {
		return Record{}, false, errors.Errorf("querying record for %s: %w", path, err)
	}
	r, err := pgx.CollectExactlyOneRow(rows, scanRecord)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, errors.Errorf("reading record for %s: %w", path, err)
	}
	return r, true, nil
}

// List implements Store
func (s *PostgresStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.Query(ctx, `SELECT file_path, status, reason, updated_at FROM `+s.table+` ORDER BY file_path`)
	if err != nil {
		return nil, errors.Errorf("querying records: %w", err)
	}
	records, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, errors.Errorf("reading records: %w", err)
	}
	return records, nil
}

// Close implements Store
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

func scanRecord(row pgx.CollectableRow) (Record, error) {
	var (
		r      Record
		status string
		reason *string
	)
	if err := row.Scan(&r.Path, &status, &reason, &r.UpdatedAt); err != nil {
		return Record{}, err
	}
	r.Status = Status(status)
	if reason != nil {
		r.Reason = *reason
	}
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r, nil
}

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
	"time"

	"github.com/redis/go-redis/v9"
	"gitlab.com/tozd/go/errors"
)

// DefaultPrefix namespaces redis keys when none is configured
const DefaultPrefix = "llmopt"

// 🟥 RedisStore keeps all records as JSON values in a single hash
type RedisStore struct {
	client *redis.Client
	key    string
	now    func() time.Time
}

// 🏭 OpenRedisStore connects and pings the server
func OpenRedisStore(ctx context.Context, addr, prefix string) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.Errorf("redis address is required")
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		PoolSize:     10,
		MinIdleConns: 2,
		PoolTimeout:  5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, errors.Errorf("pinging redis: %w", err)
	}

	return &RedisStore{client: client, key: statusKey(prefix), now: time.Now}, nil
}

func statusKey(prefix string) string { return fmt.Sprintf("%s:status", prefix) }

// LoadResumeSet implements Store
func (s *RedisStore) LoadResumeSet(ctx context.Context, mode ResumeMode) (ResumeSet, error) {
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
func (s *RedisStore) Upsert(ctx context.Context, r Record) error {
	r, err := r.normalize(s.now())
	if err != nil {
		return err
	}
	val, err := json.Marshal(r)
	if err != nil {
		return errors.Errorf("encoding record for %s: %w", r.Path, err)
	}
	if err := s.client.HSet(ctx, s.key, r.Path, val).Err(); err != nil {
		return errors.Errorf("writing record for %s: %w", r.Path, err)
	}
	return nil
}

// Get implements Store
func (s *RedisStore) Get(ctx context.Context, path string) (Record, bool, error) {
	val, err := s.client.HGet(ctx, s.key, path).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, errors.Errorf("reading record for %s: %w", path, err)
	}
	var r Record
	if err := json.Unmarshal(val, &r); err != nil {
		return Record{}, false, errors.Errorf("decoding record for %s: %w", path, err)
	}
	return r, true, nil
}

// List implements Store
func (s *RedisStore) List(ctx context.Context) ([]Record, error) {
	m, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, errors.Errorf("listing records: %w", err)
	}
	out := make([]Record, 0, len(m))
	for path, val := range m {
		var r Record
		if err := json.Unmarshal([]byte(val), &r); err != nil {
			return nil, errors.Errorf("decoding record for %s: %w", path, err)
		}
		out = append(out, r)
	}
	return sortRecords(out), nil
}

// Close implements Store
func (s *RedisStore) Close() error {
	return s.client.Close()
}

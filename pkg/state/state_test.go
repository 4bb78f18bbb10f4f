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

package state

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestLogger(t *testing.T) context.Context {
	logger := zerolog.New(zerolog.TestWriter{T: t}).With().Timestamp().Logger()
	return logger.WithContext(context.Background())
}

func TestNew(t *testing.T) {
	t.Run("creates_empty_set", func(t *testing.T) {
		dir := t.TempDir()
		set, err := New(dir)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, SnapshotFile), set.Path())
		assert.Zero(t, set.Len())
		_, err = uuid.Parse(set.RunID())
		assert.NoError(t, err, "run id is a uuid")
	})

	t.Run("requires_dir", func(t *testing.T) {
		_, err := New("")
		assert.Error(t, err)
	})
}

func TestSaveAndLoad(t *testing.T) {
	ctx := setupTestLogger(t)
	dir := t.TempDir()

	set, err := New(dir)
	require.NoError(t, err)

	set.Put("/src/a.php", "<?php echo 1;")
	set.Put("/src/b.php", "<?php echo 2;")
	set.Put("/src/a.php", "<?php echo 3;")
	require.NoError(t, set.Save(ctx))

	snap, err := LoadSnapshot(set.Path())
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, snap.SchemaVersion)
	assert.Equal(t, set.RunID(), snap.RunID)
	assert.False(t, snap.LastUpdated.IsZero())
	assert.Equal(t, map[string]string{
		"/src/a.php": "<?php echo 3;",
		"/src/b.php": "<?php echo 2;",
	}, snap.Files)

	t.Run("save_replaces_previous_snapshot", func(t *testing.T) {
		set.Put("/src/c.php", "<?php")
		require.NoError(t, set.Save(ctx))

		snap, err := LoadSnapshot(set.Path())
		require.NoError(t, err)
		assert.Len(t, snap.Files, 3)
	})

	t.Run("html_is_not_escaped", func(t *testing.T) {
		raw, err := os.ReadFile(set.Path())
		require.NoError(t, err)
		assert.Contains(t, string(raw), "<?php echo 3;")
	})
}

func TestConcurrentPut(t *testing.T) {
	ctx := setupTestLogger(t)
	set, err := New(t.TempDir())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			set.Put(fmt.Sprintf("/src/%d.php", i), "x")
			assert.NoError(t, set.Save(ctx))
		}(i)
	}
	wg.Wait()

	require.NoError(t, set.Save(ctx))
	snap, err := LoadSnapshot(set.Path())
	require.NoError(t, err)
	assert.Len(t, snap.Files, 20)
}

func TestLoadSnapshotErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadSnapshot(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading snapshot")

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0644))
	_, err = LoadSnapshot(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing snapshot")
}

// 🧪 the last Save to run always holds every Put that came before it
func TestConcurrentSaveKeepsNewest(t *testing.T) {
	ctx := setupTestLogger(t)
	set, err := New(t.TempDir())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			set.Put(fmt.Sprintf("/src/%d.php", i), "x")
			assert.NoError(t, set.Save(ctx))
		}(i)
	}
	wg.Wait()

	snap, err := LoadSnapshot(set.Path())
	require.NoError(t, err)
	assert.Len(t, snap.Files, 50, "no stale copy is written after a newer one")
}

func TestSaveSkipsUnchangedSet(t *testing.T) {
	ctx := setupTestLogger(t)
	set, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, set.Save(ctx))
	require.FileExists(t, set.Path(), "first save writes even when empty")

	require.NoError(t, os.Remove(set.Path()))
	require.NoError(t, set.Save(ctx))
	assert.NoFileExists(t, set.Path())

	set.Put("/src/a.php", "<?php")
	require.NoError(t, set.Save(ctx))
	snap, err := LoadSnapshot(set.Path())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"/src/a.php": "<?php"}, snap.Files)
}

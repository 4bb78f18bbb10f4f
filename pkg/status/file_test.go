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
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"
)

func TestFileStoreLayout(t *testing.T) {
	ctx := testContext(t)
	dir := t.TempDir()

	s, err := OpenFileStore(ctx, dir)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Upsert(ctx, Completed("/src/b.php")))
	require.NoError(t, s.Upsert(ctx, Completed("/src/a.php")))
	require.NoError(t, s.Upsert(ctx, Failed("/src/c.php", errors.New("permission denied"))))

	list, err := os.ReadFile(filepath.Join(dir, CompletedListFile))
	require.NoError(t, err)
	assert.Equal(t, "/src/a.php\n/src/b.php\n", string(list))

	raw, err := os.ReadFile(filepath.Join(dir, StatusFile))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\n    \"/src/a.php\": {", "status file is indented with four spaces")

	var entries map[string]map[string]any
	require.NoError(t, json.Unmarshal(raw, &entries))
	assert.Equal(t, "completed", entries["/src/a.php"]["status"])
	assert.Nil(t, entries["/src/a.php"]["reason"])
	assert.Equal(t, "failed", entries["/src/c.php"]["status"])
	assert.Equal(t, "permission denied", entries["/src/c.php"]["reason"])
}

func TestFileStoreLoadsLegacyFiles(t *testing.T) {
	ctx := testContext(t)
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, CompletedListFile), []byte("/src/a.php\n\n/src/b.php\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, StatusFile), []byte(`{
    "/src/b.php": {"status": "failed", "reason": "timeout"},
    "/src/c.php": {"status": "completed", "reason": null}
}`), 0644))

	s, err := OpenFileStore(ctx, dir)
	require.NoError(t, err)
	defer s.Close()

	set, err := s.LoadResumeSet(ctx, ResumeCompleted)
	require.NoError(t, err)
	assert.Equal(t, []string{"/src/a.php", "/src/c.php"}, set.Sorted(), "status map wins over the completed list")

	b, ok, err := s.Get(ctx, "/src/b.php")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "timeout", b.Reason)
}

func TestFileStoreErrors(t *testing.T) {
	t.Run("corrupt_status_file", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, StatusFile), []byte("{not json"), 0644))

		_, err := OpenFileStore(testContext(t), dir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parsing status file")
	})

	t.Run("empty_dir", func(t *testing.T) {
		_, err := OpenFileStore(testContext(t), "")
		assert.Error(t, err)
	})
}

func TestFileStoreLocking(t *testing.T) {
	t.Run("stale_lock_file_does_not_block_writes", func(t *testing.T) {
		ctx := testContext(t)
		dir := t.TempDir()
		// left behind by a killed process; nobody holds the flock
		require.NoError(t, os.WriteFile(filepath.Join(dir, LockFile), nil, 0600))

		s, err := OpenFileStore(ctx, dir)
		require.NoError(t, err)
		defer s.Close()

		for _, p := range []string{"/src/a.php", "/src/b.php", "/src/c.php"} {
			require.NoError(t, s.Upsert(ctx, Completed(p)))
		}
		set, err := s.LoadResumeSet(ctx, ResumeCompleted)
		require.NoError(t, err)
		assert.Len(t, set, 3)
	})

	t.Run("second_open_fails_while_held", func(t *testing.T) {
		ctx := testContext(t)
		dir := t.TempDir()

		first, err := OpenFileStore(ctx, dir)
		require.NoError(t, err)

		_, err = OpenFileStore(ctx, dir)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrStoreLocked)

		require.NoError(t, first.Upsert(ctx, Completed("/src/a.php")))
		require.NoError(t, first.Close())

		second, err := OpenFileStore(ctx, dir)
		require.NoError(t, err, "lock is released on close")
		defer second.Close()

		_, ok, err := second.Get(ctx, "/src/a.php")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("failed_save_keeps_memory_clean", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("permissions are not enforced for root")
		}
		ctx := testContext(t)
		dir := t.TempDir()
		s, err := OpenFileStore(ctx, dir)
		require.NoError(t, err)
		defer s.Close()

		require.NoError(t, os.Chmod(dir, 0555))
		defer os.Chmod(dir, 0755)

		require.Error(t, s.Upsert(ctx, Completed("/src/a.php")))
		_, ok, err := s.Get(ctx, "/src/a.php")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestWriteFileAtomicPreservesMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.php")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0600))

	require.NoError(t, WriteFileAtomic(path, []byte("new"), 0644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"
)

func TestCheckWritable(t *testing.T) {
	ctx := setupTestLogger(t)

	t.Run("creates_missing_dir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "out")
		require.NoError(t, CheckWritable(ctx, dir))

		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())

		_, err = os.Stat(filepath.Join(dir, ProbeFile))
		assert.True(t, os.IsNotExist(err), "probe file is removed")
	})

	t.Run("path_is_a_file", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "not-a-dir")
		require.NoError(t, os.WriteFile(file, nil, 0644))

		err := CheckWritable(ctx, file)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNotWritable))
	})
}

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
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// ProbeFile is written and removed by CheckWritable
const ProbeFile = "test_permission.txt"

// ErrNotWritable marks a failed output directory probe
var ErrNotWritable = errors.Base("output directory is not writable")

// 🔐 CheckWritable creates dir if needed and proves a file can be written
// and removed there
func CheckWritable(ctx context.Context, dir string) error {
	logger := zerolog.Ctx(ctx)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Errorf("%w: creating %s: %s", ErrNotWritable, dir, err)
	}

	probe := filepath.Join(dir, ProbeFile)
	if err := os.WriteFile(probe, []byte("Testing write permission."), 0644); err != nil {
		return errors.Errorf("%w: writing probe: %s", ErrNotWritable, err)
	}
	if err := os.Remove(probe); err != nil {
		return errors.Errorf("%w: removing probe: %s", ErrNotWritable, err)
	}

	logger.Debug().Str("dir", dir).Msg("output directory is writable")
	return nil
}

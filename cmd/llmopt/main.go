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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/walteh/llmopt/pkg/state"
	"gitlab.com/tozd/go/errors"
)

// exit codes
const (
	exitOK      = 0
	exitFailure = 1
	exitStartup = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

func execute(ctx context.Context, args []string) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		zerolog.Ctx(cmd.Context()).Error().Err(err).Msg("llmopt failed")
		fmt.Fprintln(os.Stderr, "❌", err)
		return exitCode(err)
	}
	return exitOK
}

// 🚧 startupError marks failures that happen before any file is processed
type startupError struct {
	err error
}

func (e *startupError) Error() string { return e.err.Error() }
func (e *startupError) Unwrap() error { return e.err }

func startup(err error) error {
	if err == nil {
		return nil
	}
	return &startupError{err: err}
}

func exitCode(err error) int {
	var se *startupError
	if errors.As(err, &se) || errors.Is(err, state.ErrNotWritable) {
		return exitStartup
	}
	return exitFailure
}

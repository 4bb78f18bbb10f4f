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

package log

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
)

// 🎨 Display configuration
const (
	fileIndent    = 4  // spaces to indent file entries
	nameWidth     = 50 // Base width for filename
	outcomeWidth  = 11 // Width for outcome text
	durationWidth = 8  // Width for elapsed time
)

// 🏷️ Outcome of processing one file
type Outcome string

const (
	OutcomeOptimized Outcome = "optimized"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeEmpty     Outcome = "empty"
	OutcomeFailed    Outcome = "failed"
	// OutcomeInterrupted files were cut off by cancellation and left unrecorded
	OutcomeInterrupted Outcome = "interrupted"
)

// 🎯 FileOperation represents one processed file for logging
type FileOperation struct {
	Path     string        // File path
	Outcome  Outcome       // What happened to the file
	Chunks   int           // Number of chunks sent
	Duration time.Duration // Time spent on the file
	Err      error         // Set when Outcome is OutcomeFailed
}

// 📦 BatchOperation represents a batch handed to a worker
type BatchOperation struct {
	Index int // zero-based batch index
	Total int // number of batches in the run
	Files int // files in this batch
}

// 🎯 Logger handles structured logging with console output
type Logger struct {
	zlog    zerolog.Logger
	console io.Writer
	mu      sync.Mutex
	counts  map[Outcome]int
}

// 🏭 New creates a new logger that writes human lines to console and
// structured events to zlog
func New(console io.Writer, zlog zerolog.Logger) *Logger {
	return &Logger{
		zlog:    zlog,
		console: console,
		counts:  make(map[Outcome]int),
	}
}

// 🔑 contextKey is the type for context values
type contextKey struct{}

// 🎯 FromContext gets the logger from context
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(contextKey{}).(*Logger); ok {
		return l
	}
	panic("llmopt console logger missing from context")
}

// 🎯 NewContext adds the logger to context
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// 📝 formatFileOperation formats a file operation for display
func (l *Logger) formatFileOperation(op FileOperation) string {
	var symbol rune
	var symbolColor color.Attribute
	switch op.Outcome {
	case OutcomeOptimized:
		symbol = '✓'
		symbolColor = color.FgGreen
	case OutcomeFailed:
		symbol = '✗'
		symbolColor = color.FgRed
	case OutcomeEmpty:
		symbol = '∅'
		symbolColor = color.FgYellow
	case OutcomeInterrupted:
		symbol = '⏸'
		symbolColor = color.FgYellow
	default:
		symbol = '-'
		symbolColor = color.FgHiBlack
	}

	line := fmt.Sprintf("%s%s %s %s %s",
		fmt.Sprintf("%*s", fileIndent, ""),
		color.New(symbolColor).Sprint(string(symbol)),
		fmt.Sprintf("%-*s", nameWidth, op.Path),
		fmt.Sprintf("%-*s", outcomeWidth, op.Outcome),
		fmt.Sprintf("%*s", durationWidth, formatDuration(op.Duration)))

	if op.Err != nil {
		line += " " + color.New(color.FgRed).Sprint(op.Err.Error())
	}
	return line
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}

// 📝 LogFileOperation logs a file operation
func (l *Logger) LogFileOperation(ctx context.Context, op FileOperation) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.counts[op.Outcome]++

	fmt.Fprintln(l.console, l.formatFileOperation(op))

	ev := l.zlog.Info()
	if op.Outcome == OutcomeFailed {
		ev = l.zlog.Error().Err(op.Err)
	}
	ev.Str("file", op.Path).
		Str("outcome", string(op.Outcome)).
		Int("chunks", op.Chunks).
		Dur("duration", op.Duration).
		Msg("file processed")
}

// 📝 StartBatch prints a batch header
func (l *Logger) StartBatch(ctx context.Context, op BatchOperation) {
	l.mu.Lock()
	defer l.mu.Unlock()

	fmt.Fprintf(l.console, "%s %s %s\n",
		color.New(color.FgMagenta).Sprint("◆"),
		color.New(color.Bold).Sprintf("batch %d/%d", op.Index+1, op.Total),
		color.New(color.Faint).Sprintf("• %d files", op.Files))

	l.zlog.Debug().
		Int("batch", op.Index+1).
		Int("batches", op.Total).
		Int("files", op.Files).
		Msg("starting batch")
}

// Counts returns how many files were logged per outcome
func (l *Logger) Counts() map[Outcome]int {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[Outcome]int, len(l.counts))
	for k, v := range l.counts {
		out[k] = v
	}
	return out
}

// 📝 LogNewline logs a newline
func (l *Logger) LogNewline() {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.console)
}

// 📝 Header logs a header
func (l *Logger) Header(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	name := color.New(color.Bold, color.FgCyan).Sprint("llmopt")
	fmt.Fprintf(l.console, "\n%s %s\n\n", name, color.New(color.Faint).Sprint("• "+msg))
	l.zlog.Info().Msg(msg)
}

// 🏷️ message kinds printed by the plain message helpers
type messageKind struct {
	icon  string
	color color.Attribute
	level zerolog.Level
}

var (
	kindSuccess = messageKind{icon: "✅ ", color: color.FgGreen, level: zerolog.InfoLevel}
	kindWarning = messageKind{icon: "⚠️  ", color: color.FgYellow, level: zerolog.WarnLevel}
	kindError   = messageKind{icon: "❌ ", color: color.FgRed, level: zerolog.ErrorLevel}
	kindInfo    = messageKind{icon: "ℹ️  ", color: color.FgCyan, level: zerolog.InfoLevel}
)

func (l *Logger) message(k messageKind, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.console, k.icon+color.New(k.color).Sprint(msg))
	l.zlog.WithLevel(k.level).Msg(msg)
}

// Success prints msg with a check mark
func (l *Logger) Success(msg string) { l.message(kindSuccess, msg) }

// Warning prints msg with a warning sign
func (l *Logger) Warning(msg string) { l.message(kindWarning, msg) }

// Error prints msg with a cross
func (l *Logger) Error(msg string) { l.message(kindError, msg) }

// Info prints msg with an info sign
func (l *Logger) Info(msg string) { l.message(kindInfo, msg) }

func (l *Logger) Successf(format string, args ...any) { l.Success(fmt.Sprintf(format, args...)) }
func (l *Logger) Warningf(format string, args ...any) { l.Warning(fmt.Sprintf(format, args...)) }
func (l *Logger) Errorf(format string, args ...any)   { l.Error(fmt.Sprintf(format, args...)) }
func (l *Logger) Infof(format string, args ...any)    { l.Info(fmt.Sprintf(format, args...)) }

package status

import (
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

// 🧪 TestFormatRecord tests record line rendering without color
func TestFormatRecord(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	tests := []struct {
		name   string
		record Record
		prefix string
		suffix string
	}{
		{
			name:   "completed",
			record: Completed("/src/a.php"),
			prefix: "    ✓ /src/a.php",
			suffix: "completed",
		},
		{
			name:   "failed_with_reason",
			record: Record{Path: "/src/b.php", Status: StatusFailed, Reason: "permission denied"},
			prefix: "    ✗ /src/b.php",
			suffix: "failed     permission denied",
		},
		{
			name:   "pending",
			record: Record{Path: "/src/c.php", Status: StatusPending},
			prefix: "    - /src/c.php",
			suffix: "pending",
		},
	}

	formatter := NewDefaultRecordFormatter()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatter.FormatRecord(tt.record)
			assert.Contains(t, got, tt.prefix)
			assert.True(t, len(got) >= len(tt.suffix) && got[len(got)-len(tt.suffix):] == tt.suffix, "got %q", got)
		})
	}
}

// 🧪 TestProgressFormatting tests progress message formatting
func TestProgressFormatting(t *testing.T) {
	tests := []struct {
		name     string
		current  int
		total    int
		expected string
	}{
		{name: "zero_progress", current: 0, total: 10, expected: "⏳ Progress: 0/10 (0%)"},
		{name: "half_progress", current: 5, total: 10, expected: "⏳ Progress: 5/10 (50%)"},
		{name: "complete", current: 10, total: 10, expected: "✅ Progress: 10/10 (100%)"},
		{name: "zero_total", current: 0, total: 0, expected: "✅ Progress: 0/0 (0%)"},
		{name: "current_exceeds_total", current: 15, total: 10, expected: "✅ Progress: 15/10 (100%)"},
		{name: "negative_values", current: -1, total: -1, expected: "✅ Progress: 0/0 (0%)"},
	}

	formatter := NewDefaultRecordFormatter()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatter.FormatProgress(tt.current, tt.total))
		})
	}
}

func TestFormatCounts(t *testing.T) {
	formatter := NewDefaultRecordFormatter()

	assert.Equal(t, "📊 0 records: 0 completed, 0 failed", formatter.FormatCounts(nil))
	assert.Equal(t, "📊 3 records: 1 completed, 1 failed, 1 pending", formatter.FormatCounts([]Record{
		Completed("/a"),
		Failed("/b", assert.AnError),
		{Path: "/c", Status: StatusPending},
	}))
}

// 🧪 TestErrorFormatting tests error message formatting
func TestErrorFormatting(t *testing.T) {
	formatter := NewDefaultRecordFormatter()

	assert.Equal(t, "❌ Error: assert.AnError general error for testing", formatter.FormatError(assert.AnError))
	assert.Empty(t, formatter.FormatError(nil))
}

package status

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// 🎨 Display configuration
const (
	recordIndent = 4  // spaces to indent record entries
	nameWidth    = 50 // Base width for the file path
	statusWidth  = 10 // Width for status text
)

// RecordFormatter defines how records and run progress are rendered for humans
type RecordFormatter interface {
	// FormatRecord formats a single record line
	FormatRecord(r Record) string

	// FormatProgress formats a progress message
	FormatProgress(current, total int) string

	// FormatCounts formats per-status totals
	FormatCounts(records []Record) string

	// FormatError formats an error message
	FormatError(err error) string
}

// DefaultRecordFormatter renders records with color symbols
type DefaultRecordFormatter struct{}

// NewDefaultRecordFormatter creates a new DefaultRecordFormatter
func NewDefaultRecordFormatter() *DefaultRecordFormatter {
	return &DefaultRecordFormatter{}
}

// FormatRecord formats a record as an indented, padded line
func (f *DefaultRecordFormatter) FormatRecord(r Record) string {
	var prefix string
	switch r.Status {
	case StatusCompleted:
		prefix = color.GreenString("✓")
	case StatusFailed:
		prefix = color.RedString("✗")
	default:
		prefix = color.HiBlackString("-")
	}

	line := fmt.Sprintf("%s%s %-*s %-*s",
		strings.Repeat(" ", recordIndent),
		prefix,
		nameWidth, r.Path,
		statusWidth, r.Status,
	)
	if r.Status == StatusFailed && r.Reason != "" {
		line += " " + color.HiBlackString(r.Reason)
	}
	return strings.TrimRight(line, " ")
}

// FormatProgress formats a progress message with percentage
func (f *DefaultRecordFormatter) FormatProgress(current, total int) string {
	if current < 0 {
		current = 0
	}
	if total < 0 {
		total = 0
	}

	var percentage float64
	if total > 0 {
		percentage = float64(current) / float64(total) * 100
		if percentage > 100 {
			percentage = 100
		}
	}

	if current >= total {
		return fmt.Sprintf("✅ Progress: %d/%d (%.0f%%)", current, total, percentage)
	}
	return fmt.Sprintf("⏳ Progress: %d/%d (%.0f%%)", current, total, percentage)
}

// FormatCounts summarizes records by status
func (f *DefaultRecordFormatter) FormatCounts(records []Record) string {
	var completed, failed, other int
	for _, r := range records {
		switch r.Status {
		case StatusCompleted:
			completed++
		case StatusFailed:
			failed++
		default:
			other++
		}
	}
	out := fmt.Sprintf("📊 %d records: %d completed, %d failed", len(records), completed, failed)
	if other > 0 {
		out += fmt.Sprintf(", %d pending", other)
	}
	return out
}

// FormatError formats an error message with emoji
func (f *DefaultRecordFormatter) FormatError(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("❌ Error: %v", err)
}

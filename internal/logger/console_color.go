package logger

import (
	"strings"

	"github.com/fatih/color"
)

// colorScheme defines consistent colors for console output.
// Green: passing documents and counts
// Red: failures and errors
// Yellow: warnings and skipped documents
// Cyan: debug output
type colorScheme struct {
	success *color.Color
	fail    *color.Color
	warn    *color.Color
	label   *color.Color
	muted   *color.Color
}

// newColorScheme creates the standard console color scheme.
func newColorScheme() *colorScheme {
	return &colorScheme{
		success: color.New(color.FgGreen),
		fail:    color.New(color.FgRed),
		warn:    color.New(color.FgYellow),
		label:   color.New(color.FgCyan),
		muted:   color.New(color.FgHiBlack),
	}
}

// level colors a log level label.
func (s *colorScheme) level(level string) string {
	switch strings.ToUpper(level) {
	case "TRACE":
		return s.muted.Sprint(level)
	case "DEBUG":
		return s.label.Sprint(level)
	case "INFO":
		return color.New(color.FgBlue).Sprint(level)
	case "WARN":
		return s.warn.Sprint(level)
	case "ERROR":
		return s.fail.Sprint(level)
	default:
		return level
	}
}

// status colors a document verdict.
func (s *colorScheme) status(status string) string {
	switch status {
	case "PASSED":
		return s.success.Sprint(status)
	case "SKIPPED", "EMPTY":
		return s.warn.Sprint(status)
	case "FAILED", "ERROR", "SETUP FAILED":
		return s.fail.Sprint(status)
	default:
		return status
	}
}

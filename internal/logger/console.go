// Package logger provides logging implementations for doctest runs.
//
// Loggers report per-document results and the final run summary. All
// implementations are safe for concurrent use because documents finish on
// worker goroutines.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/harrison/doctest/internal/suite"
)

// Log level constants for filtering
const (
	levelTrace int = 0
	levelDebug int = 1
	levelInfo  int = 2
	levelWarn  int = 3
	levelError int = 4
)

// Logger is implemented by every logger in this package.
type Logger interface {
	LogTrace(message string)
	LogDebug(message string)
	LogInfo(message string)
	LogWarn(message string)
	LogError(message string)
	LogDocumentResult(doc suite.DocumentResult)
	LogSummary(result *suite.Result)
}

// ConsoleLogger writes run progress to a writer with [HH:MM:SS] timestamps.
// It filters by log level and colors output when writing to a terminal.
type ConsoleLogger struct {
	writer      io.Writer
	logLevel    string
	mutex       sync.Mutex
	colorOutput bool
	scheme      *colorScheme
}

// NewConsoleLogger creates a ConsoleLogger that writes to the provided io.Writer.
// If writer is nil, messages are silently discarded.
// Valid levels: trace, debug, info, warn, error (case-insensitive).
// An empty or unknown level falls back to "info".
func NewConsoleLogger(writer io.Writer, logLevel string) *ConsoleLogger {
	return &ConsoleLogger{
		writer:      writer,
		logLevel:    normalizeLogLevel(logLevel),
		colorOutput: isTerminal(writer),
		scheme:      newColorScheme(),
	}
}

// isTerminal reports whether w is os.Stdout or os.Stderr attached to a TTY.
// NO_COLOR disables color through color.NoColor.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || (f != os.Stdout && f != os.Stderr) {
		return false
	}
	if color.NoColor {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// normalizeLogLevel converts a log level string to lowercase and validates it.
// Returns "info" as default for empty or invalid levels.
func normalizeLogLevel(level string) string {
	normalized := strings.ToLower(strings.TrimSpace(level))
	switch normalized {
	case "trace", "debug", "info", "warn", "error":
		return normalized
	}
	return "info"
}

// shouldLog checks if a message at the given level should be logged.
func (cl *ConsoleLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(cl.logLevel)
}

// logLevelToInt converts a log level string to its numeric value.
func logLevelToInt(level string) int {
	switch level {
	case "trace":
		return levelTrace
	case "debug":
		return levelDebug
	case "info":
		return levelInfo
	case "warn":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

// LogTrace logs a trace-level message.
// Format: "[HH:MM:SS] [TRACE] <message>"
func (cl *ConsoleLogger) LogTrace(message string) {
	cl.logWithLevel("TRACE", message)
}

// LogDebug logs a debug-level message.
// Format: "[HH:MM:SS] [DEBUG] <message>"
func (cl *ConsoleLogger) LogDebug(message string) {
	cl.logWithLevel("DEBUG", message)
}

// LogInfo logs an info-level message.
// Format: "[HH:MM:SS] [INFO] <message>"
func (cl *ConsoleLogger) LogInfo(message string) {
	cl.logWithLevel("INFO", message)
}

// LogWarn logs a warning-level message.
// Format: "[HH:MM:SS] [WARN] <message>"
func (cl *ConsoleLogger) LogWarn(message string) {
	cl.logWithLevel("WARN", message)
}

// LogError logs an error-level message.
// Format: "[HH:MM:SS] [ERROR] <message>"
func (cl *ConsoleLogger) LogError(message string) {
	cl.logWithLevel("ERROR", message)
}

func (cl *ConsoleLogger) logWithLevel(level string, message string) {
	if cl.writer == nil || !cl.shouldLog(strings.ToLower(level)) {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	label := level
	if cl.colorOutput {
		label = cl.scheme.level(level)
	}
	fmt.Fprintf(cl.writer, "[%s] [%s] %s\n", timestamp(), label, message)
}

// LogDocumentResult logs one finished document. Passing documents are
// logged at DEBUG level, failing ones at INFO.
// Format: "[HH:MM:SS] <path>: <STATUS> (<n> passed, <n> failed, ...) in <d>"
func (cl *ConsoleLogger) LogDocumentResult(doc suite.DocumentResult) {
	if cl.writer == nil {
		return
	}
	level := "info"
	if doc.Passed() {
		level = "debug"
	}
	if !cl.shouldLog(level) {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	status := documentStatus(doc)
	if cl.colorOutput {
		status = cl.scheme.status(status)
	}
	s := doc.Summary
	line := fmt.Sprintf("[%s] %s: %s (%d passed, %d failed, %d unexpected, %d skipped) in %s\n",
		timestamp(), doc.Path, status, s.Pass, s.Fail, s.Unexpected, s.Skip, formatDuration(doc.Duration))
	if doc.Err != nil {
		line += fmt.Sprintf("[%s]   error: %v\n", timestamp(), doc.Err)
	}
	if doc.SetupErr != nil {
		line += fmt.Sprintf("[%s]   setup: %v\n", timestamp(), doc.SetupErr)
	}
	if doc.CleanupErr != nil {
		line += fmt.Sprintf("[%s]   cleanup: %v\n", timestamp(), doc.CleanupErr)
	}
	io.WriteString(cl.writer, line)
}

// documentStatus extends the summary status with pipeline verdicts.
func documentStatus(doc suite.DocumentResult) string {
	switch {
	case doc.Err != nil:
		return "ERROR"
	case doc.SetupErr != nil:
		return "SETUP FAILED"
	default:
		return doc.Summary.Status()
	}
}

// LogSummary logs the run totals at INFO level.
func (cl *ConsoleLogger) LogSummary(result *suite.Result) {
	if cl.writer == nil || result == nil || !cl.shouldLog("info") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	pass, fail, unexpected, skip := result.Totals()
	failedDocs := result.FailedDocuments()

	header := "=== Doctest Summary ==="
	passedText := fmt.Sprintf("Passed: %d", pass)
	failedText := fmt.Sprintf("Failed: %d (%d unexpected exceptions)", fail+unexpected, unexpected)
	if cl.colorOutput {
		header = color.New(color.Bold).Sprint(header)
		passedText = cl.scheme.success.Sprint(passedText)
		if fail+unexpected > 0 {
			failedText = cl.scheme.fail.Sprint(failedText)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s\n", ts, header)
	fmt.Fprintf(&b, "[%s] Documents: %d (%d failed)\n", ts, len(result.Documents), failedDocs)
	fmt.Fprintf(&b, "[%s] %s\n", ts, passedText)
	fmt.Fprintf(&b, "[%s] %s\n", ts, failedText)
	fmt.Fprintf(&b, "[%s] Skipped: %d\n", ts, skip)
	fmt.Fprintf(&b, "[%s] Duration: %s\n", ts, formatDuration(result.Duration))

	if failedDocs > 0 {
		label := "Failed documents:"
		if cl.colorOutput {
			label = cl.scheme.fail.Sprint(label)
		}
		fmt.Fprintf(&b, "[%s] %s\n", ts, label)
		for _, doc := range result.Documents {
			if !doc.Passed() {
				fmt.Fprintf(&b, "[%s]   - %s: %s\n", ts, doc.Path, documentStatus(doc))
			}
		}
	}

	io.WriteString(cl.writer, b.String())
}

// LogProgress logs how many documents have finished at INFO level.
// Format: "[HH:MM:SS] Progress: [=====     ] 3/6 (50%)"
func (cl *ConsoleLogger) LogProgress(done, total int) {
	if cl.writer == nil || total <= 0 || !cl.shouldLog("info") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	pb := NewProgressBar(total, 10, cl.colorOutput)
	pb.Update(done)
	fmt.Fprintf(cl.writer, "[%s] Progress: %s\n", timestamp(), pb.Render())
}

// timestamp returns the current time formatted as "15:04:05" (HH:MM:SS).
func timestamp() string {
	return time.Now().Format("15:04:05")
}

// formatDuration converts a time.Duration to a short human-readable string.
// Examples: "250ms", "5s", "1m30s", "2h15m"
func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Hour:
		hours := d / time.Hour
		minutes := (d % time.Hour) / time.Minute
		if minutes == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		return fmt.Sprintf("%dh%dm", hours, minutes)
	case d >= time.Minute:
		minutes := d / time.Minute
		seconds := (d % time.Minute) / time.Second
		if seconds == 0 {
			return fmt.Sprintf("%dm", minutes)
		}
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	case d >= time.Second:
		return fmt.Sprintf("%ds", int64(d.Seconds()))
	default:
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
}

// NoOpLogger is a Logger implementation that discards all log messages.
// Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// NewNoOpLogger creates a NoOpLogger instance.
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

func (n *NoOpLogger) LogTrace(string)                        {}
func (n *NoOpLogger) LogDebug(string)                        {}
func (n *NoOpLogger) LogInfo(string)                         {}
func (n *NoOpLogger) LogWarn(string)                         {}
func (n *NoOpLogger) LogError(string)                        {}
func (n *NoOpLogger) LogDocumentResult(suite.DocumentResult) {}
func (n *NoOpLogger) LogSummary(*suite.Result)               {}

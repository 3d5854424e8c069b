package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/harrison/doctest/internal/suite"
)

// traceLevel sits below zap's DebugLevel.
const traceLevel = zapcore.DebugLevel - 1

// FileLogger writes JSON log lines to a timestamped run-YYYYMMDD-HHMMSS.log
// file in the log directory and points latest.log at it.
type FileLogger struct {
	logDir  string
	runFile string
	file    *os.File
	log     *zap.Logger
	mu      sync.Mutex
	closed  bool
}

// NewFileLogger creates the log directory if needed, opens a new run log and
// updates the latest.log symlink.
func NewFileLogger(logDir string, logLevel string) (*FileLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	runFile := filepath.Join(logDir, fmt.Sprintf("run-%s.log", time.Now().Format("20060102-150405")))
	file, err := os.OpenFile(runFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create run log file: %w", err)
	}

	symlinkPath := filepath.Join(logDir, "latest.log")
	if _, err := os.Lstat(symlinkPath); err == nil {
		if err := os.Remove(symlinkPath); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to remove old symlink: %w", err)
		}
	}
	if err := os.Symlink(filepath.Base(runFile), symlinkPath); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create symlink: %w", err)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "ts"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = encodeLevel
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.Lock(file),
		zap.NewAtomicLevelAt(zapLevel(normalizeLogLevel(logLevel))),
	)

	fl := &FileLogger{
		logDir:  logDir,
		runFile: runFile,
		file:    file,
		log:     zap.New(core),
	}
	fl.log.Info("run started", zap.Int("pid", os.Getpid()))
	return fl, nil
}

// zapLevel maps a normalized level name onto zap.
func zapLevel(level string) zapcore.Level {
	switch level {
	case "trace":
		return traceLevel
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func encodeLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	if l == traceLevel {
		enc.AppendString("trace")
		return
	}
	zapcore.LowercaseLevelEncoder(l, enc)
}

// RunFile returns the path of the current run log.
func (fl *FileLogger) RunFile() string {
	return fl.runFile
}

func (fl *FileLogger) write(level zapcore.Level, message string, fields ...zap.Field) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.closed {
		return
	}
	if ce := fl.log.Check(level, message); ce != nil {
		ce.Write(fields...)
	}
}

// LogTrace logs a trace-level message.
func (fl *FileLogger) LogTrace(message string) {
	fl.write(traceLevel, message)
}

// LogDebug logs a debug-level message.
func (fl *FileLogger) LogDebug(message string) {
	fl.write(zapcore.DebugLevel, message)
}

// LogInfo logs an info-level message.
func (fl *FileLogger) LogInfo(message string) {
	fl.write(zapcore.InfoLevel, message)
}

// LogWarn logs a warning-level message.
func (fl *FileLogger) LogWarn(message string) {
	fl.write(zapcore.WarnLevel, message)
}

// LogError logs an error-level message.
func (fl *FileLogger) LogError(message string) {
	fl.write(zapcore.ErrorLevel, message)
}

// LogDocumentResult logs one document at INFO level (WARN when it failed),
// followed by one DEBUG entry per failing example.
func (fl *FileLogger) LogDocumentResult(doc suite.DocumentResult) {
	s := doc.Summary
	fields := []zap.Field{
		zap.String("path", doc.Path),
		zap.String("status", documentStatus(doc)),
		zap.Int("pass", s.Pass),
		zap.Int("fail", s.Fail),
		zap.Int("unexpected", s.Unexpected),
		zap.Int("skip", s.Skip),
		zap.Duration("duration", doc.Duration),
	}
	if doc.Err != nil {
		fields = append(fields, zap.Error(doc.Err))
	}
	if doc.SetupErr != nil {
		fields = append(fields, zap.NamedError("setup_error", doc.SetupErr))
	}
	if doc.CleanupErr != nil {
		fields = append(fields, zap.NamedError("cleanup_error", doc.CleanupErr))
	}

	level := zapcore.InfoLevel
	if !doc.Passed() {
		level = zapcore.WarnLevel
	}
	fl.write(level, "document finished", fields...)

	for _, o := range s.Outcomes {
		if !o.Failed() || o.Example == nil {
			continue
		}
		fl.write(zapcore.DebugLevel, "example failed",
			zap.String("path", doc.Path),
			zap.Int("line", o.Example.Line),
			zap.String("block", o.Example.Block),
			zap.String("kind", string(o.Kind)),
			zap.String("detail", o.Detail),
		)
	}
}

// LogSummary logs the run totals at INFO level.
func (fl *FileLogger) LogSummary(result *suite.Result) {
	if result == nil {
		return
	}
	pass, fail, unexpected, skip := result.Totals()
	fl.write(zapcore.InfoLevel, "run finished",
		zap.Int("documents", len(result.Documents)),
		zap.Int("failed_documents", result.FailedDocuments()),
		zap.Int("pass", pass),
		zap.Int("fail", fail),
		zap.Int("unexpected", unexpected),
		zap.Int("skip", skip),
		zap.Duration("duration", result.Duration),
		zap.Bool("success", result.Passed()),
	)
}

// Close flushes and closes the run log file. Later calls are no-ops.
func (fl *FileLogger) Close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.closed {
		return nil
	}
	fl.closed = true

	if err := fl.log.Sync(); err != nil {
		fl.file.Close()
		return fmt.Errorf("failed to sync run log: %w", err)
	}
	if err := fl.file.Close(); err != nil {
		return fmt.Errorf("failed to close run log: %w", err)
	}
	return nil
}

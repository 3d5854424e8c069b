package logger

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readEntries decodes every JSON line of the latest run log.
func readEntries(t *testing.T, logDir string) []map[string]any {
	t.Helper()
	f, err := os.Open(filepath.Join(logDir, "latest.log"))
	require.NoError(t, err)
	defer f.Close()

	var entries []map[string]any
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry), "line %q", scanner.Text())
		entries = append(entries, entry)
	}
	require.NoError(t, scanner.Err())
	return entries
}

func findEntry(entries []map[string]any, msg string) map[string]any {
	for _, e := range entries {
		if e["msg"] == msg {
			return e
		}
	}
	return nil
}

func TestNewFileLogger(t *testing.T) {
	logDir := filepath.Join(t.TempDir(), "nested", "logs")
	fl, err := NewFileLogger(logDir, "info")
	require.NoError(t, err)
	defer fl.Close()

	info, err := os.Stat(logDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	base := filepath.Base(fl.RunFile())
	assert.True(t, strings.HasPrefix(base, "run-"), base)
	assert.True(t, strings.HasSuffix(base, ".log"), base)
	assert.Len(t, base, len("run-20060102-150405.log"))

	target, err := os.Readlink(filepath.Join(logDir, "latest.log"))
	require.NoError(t, err)
	assert.Equal(t, base, target)
}

func TestSymlinkUpdate(t *testing.T) {
	logDir := t.TempDir()
	first, err := NewFileLogger(logDir, "info")
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := NewFileLogger(logDir, "info")
	require.NoError(t, err)
	defer second.Close()

	target, err := os.Readlink(filepath.Join(logDir, "latest.log"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(second.RunFile()), target)
}

func TestFileLogger_JSONEntries(t *testing.T) {
	logDir := t.TempDir()
	fl, err := NewFileLogger(logDir, "debug")
	require.NoError(t, err)

	fl.LogInfo("collecting 2 documents")
	fl.LogDocumentResult(passingDoc())
	fl.LogDocumentResult(failingDoc())
	fl.LogSummary(sampleResult())
	require.NoError(t, fl.Close())

	entries := readEntries(t, logDir)
	require.NotEmpty(t, entries)
	assert.Equal(t, "run started", entries[0]["msg"])
	for _, e := range entries {
		assert.Contains(t, e, "ts")
		assert.Contains(t, e, "level")
	}

	collecting := findEntry(entries, "collecting 2 documents")
	require.NotNil(t, collecting)
	assert.Equal(t, "info", collecting["level"])

	var finished []map[string]any
	for _, e := range entries {
		if e["msg"] == "document finished" {
			finished = append(finished, e)
		}
	}
	require.Len(t, finished, 2)
	assert.Equal(t, "info", finished[0]["level"])
	assert.Equal(t, "PASSED", finished[0]["status"])
	assert.Equal(t, "warn", finished[1]["level"])
	assert.Equal(t, "bad.md", finished[1]["path"])
	assert.Equal(t, float64(1), finished[1]["fail"])

	failed := findEntry(entries, "example failed")
	require.NotNil(t, failed)
	assert.Equal(t, "debug", failed["level"])
	assert.Equal(t, float64(7), failed["line"])
	assert.Equal(t, "fail", failed["kind"])
	assert.Contains(t, failed["detail"], "Expected:")

	summary := findEntry(entries, "run finished")
	require.NotNil(t, summary)
	assert.Equal(t, float64(2), summary["documents"])
	assert.Equal(t, float64(1), summary["failed_documents"])
	assert.Equal(t, false, summary["success"])
}

func TestFileLogger_DocumentError(t *testing.T) {
	logDir := t.TempDir()
	fl, err := NewFileLogger(logDir, "info")
	require.NoError(t, err)
	fl.LogDocumentResult(brokenDoc())
	require.NoError(t, fl.Close())

	entry := findEntry(readEntries(t, logDir), "document finished")
	require.NotNil(t, entry)
	assert.Equal(t, "ERROR", entry["status"])
	assert.Equal(t, "broken.rst: parse failed: unterminated fence", entry["error"])
}

func TestFileLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		level   string
		present []string
		absent  []string
	}{
		{level: "trace", present: []string{"t", "d", "i", "w", "e"}},
		{level: "debug", present: []string{"d", "i", "w", "e"}, absent: []string{"t"}},
		{level: "info", present: []string{"i", "w", "e"}, absent: []string{"t", "d"}},
		{level: "warn", present: []string{"w", "e"}, absent: []string{"t", "d", "i", "run started"}},
		{level: "error", present: []string{"e"}, absent: []string{"t", "d", "i", "w"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logDir := t.TempDir()
			fl, err := NewFileLogger(logDir, tt.level)
			require.NoError(t, err)
			fl.LogTrace("t")
			fl.LogDebug("d")
			fl.LogInfo("i")
			fl.LogWarn("w")
			fl.LogError("e")
			require.NoError(t, fl.Close())

			entries := readEntries(t, logDir)
			for _, msg := range tt.present {
				assert.NotNil(t, findEntry(entries, msg), "expected %q", msg)
			}
			for _, msg := range tt.absent {
				assert.Nil(t, findEntry(entries, msg), "unexpected %q", msg)
			}
		})
	}
}

func TestFileLogger_TraceLevelName(t *testing.T) {
	logDir := t.TempDir()
	fl, err := NewFileLogger(logDir, "trace")
	require.NoError(t, err)
	fl.LogTrace("deep")
	require.NoError(t, fl.Close())

	entry := findEntry(readEntries(t, logDir), "deep")
	require.NotNil(t, entry)
	assert.Equal(t, "trace", entry["level"])
}

func TestFileLogger_CloseTwice(t *testing.T) {
	fl, err := NewFileLogger(t.TempDir(), "info")
	require.NoError(t, err)
	require.NoError(t, fl.Close())
	assert.NoError(t, fl.Close())

	// Writes after Close are dropped.
	fl.LogError("late")
	fl.LogSummary(sampleResult())
}

func TestNewFileLogger_InvalidPath(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	_, err := NewFileLogger(filepath.Join(blocker, "logs"), "info")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create log directory")
}

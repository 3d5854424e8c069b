package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harrison/doctest/internal/fileutil"
)

func TestOpString(t *testing.T) {
	tests := []struct {
		op       Op
		expected string
	}{
		{Changed, "changed"},
		{Removed, "removed"},
		{Op(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.op.String(); got != tt.expected {
				t.Errorf("Op.String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func newTestWatcher(t *testing.T, paths []string, opts fileutil.ScanOptions) *Watcher {
	t.Helper()
	w, err := New(paths, opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	w.SetDebounceDelay(20 * time.Millisecond)
	t.Cleanup(func() { w.Close() })
	return w
}

func waitEvent(t *testing.T, w *Watcher) Event {
	t.Helper()
	select {
	case event := <-w.Events():
		return event
	case err := <-w.Errors():
		t.Fatalf("Unexpected error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for event")
	}
	return Event{}
}

func expectNoEvent(t *testing.T, w *Watcher, within time.Duration) {
	t.Helper()
	select {
	case event := <-w.Events():
		t.Errorf("Unexpected event %v for %s", event.Op, event.Path)
	case <-time.After(within):
	}
}

func TestNew_MissingPath(t *testing.T) {
	_, err := New([]string{filepath.Join(t.TempDir(), "missing")}, fileutil.ScanOptions{})
	if err == nil {
		t.Fatal("expected error for missing path")
	}
}

func TestNew_InvalidPattern(t *testing.T) {
	_, err := New([]string{t.TempDir()}, fileutil.ScanOptions{Include: []string{"[bad"}})
	if err == nil {
		t.Fatal("expected error for invalid include pattern")
	}
}

func TestWatcher_DocumentCreated(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(t, []string{dir}, fileutil.ScanOptions{})

	doc := filepath.Join(dir, "guide.md")
	if err := os.WriteFile(doc, []byte("# Guide\n"), 0644); err != nil {
		t.Fatalf("Failed to create document: %v", err)
	}

	event := waitEvent(t, w)
	if event.Path != doc {
		t.Errorf("Event.Path = %v, want %v", event.Path, doc)
	}
	if event.Op != Changed {
		t.Errorf("Event.Op = %v, want %v", event.Op, Changed)
	}
	if event.Timestamp.IsZero() {
		t.Error("Event.Timestamp not set")
	}
}

func TestWatcher_DocumentRemoved(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "api.rst")
	if err := os.WriteFile(doc, []byte("API\n===\n"), 0644); err != nil {
		t.Fatalf("Failed to create document: %v", err)
	}
	w := newTestWatcher(t, []string{dir}, fileutil.ScanOptions{})

	if err := os.Remove(doc); err != nil {
		t.Fatalf("Failed to remove document: %v", err)
	}

	event := waitEvent(t, w)
	if event.Path != doc || event.Op != Removed {
		t.Errorf("got %v %s, want removed %s", event.Op, event.Path, doc)
	}
}

func TestWatcher_IgnoresNonDocuments(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(t, []string{dir}, fileutil.ScanOptions{})

	if err := os.WriteFile(filepath.Join(dir, "notes.json"), []byte("{}"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	expectNoEvent(t, w, 300*time.Millisecond)
}

func TestWatcher_ExcludePattern(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(t, []string{dir}, fileutil.ScanOptions{Exclude: []string{"CHANGELOG.md"}})

	if err := os.WriteFile(filepath.Join(dir, "CHANGELOG.md"), []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	expectNoEvent(t, w, 300*time.Millisecond)
}

func TestWatcher_ExplicitFile(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "session.txt")
	other := filepath.Join(dir, "other.txt")
	for _, p := range []string{doc, other} {
		if err := os.WriteFile(p, []byte(">>> 1\n1\n"), 0644); err != nil {
			t.Fatalf("Failed to create file: %v", err)
		}
	}
	w := newTestWatcher(t, []string{doc}, fileutil.ScanOptions{})

	if err := os.WriteFile(other, []byte("changed"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	if err := os.WriteFile(doc, []byte(">>> 2\n2\n"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	event := waitEvent(t, w)
	if event.Path != doc {
		t.Errorf("Event.Path = %v, want %v", event.Path, doc)
	}
	expectNoEvent(t, w, 200*time.Millisecond)
}

func TestWatcher_RecursiveWatching(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "docs", "howto")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	w := newTestWatcher(t, []string{dir}, fileutil.ScanOptions{})

	doc := filepath.Join(sub, "deep.md")
	if err := os.WriteFile(doc, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if event := waitEvent(t, w); event.Path != doc {
		t.Errorf("Event.Path = %v, want %v", event.Path, doc)
	}
}

func TestWatcher_NewSubdirectory(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(t, []string{dir}, fileutil.ScanOptions{})

	sub := filepath.Join(dir, "added")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	// Give the watcher time to pick up the new directory.
	time.Sleep(200 * time.Millisecond)

	doc := filepath.Join(sub, "new.md")
	if err := os.WriteFile(doc, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if event := waitEvent(t, w); event.Path != doc {
		t.Errorf("Event.Path = %v, want %v", event.Path, doc)
	}
}

func TestWatcher_SkipsHiddenAndExcludedDirs(t *testing.T) {
	dir := t.TempDir()
	for _, d := range []string{".git", "node_modules"} {
		if err := os.Mkdir(filepath.Join(dir, d), 0755); err != nil {
			t.Fatal(err)
		}
	}
	w := newTestWatcher(t, []string{dir}, fileutil.ScanOptions{})

	for _, d := range []string{".git", "node_modules"} {
		if err := os.WriteFile(filepath.Join(dir, d, "README.md"), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	expectNoEvent(t, w, 300*time.Millisecond)
}

func TestWatcher_Debounce(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "busy.md")
	if err := os.WriteFile(doc, []byte("initial"), 0644); err != nil {
		t.Fatal(err)
	}
	w := newTestWatcher(t, []string{dir}, fileutil.ScanOptions{})
	w.SetDebounceDelay(200 * time.Millisecond)

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(doc, []byte("write"+string(rune('0'+i))), 0644); err != nil {
			t.Fatalf("Failed to write: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	eventCount := 0
	timeout := time.After(time.Second)
loop:
	for {
		select {
		case <-w.Events():
			eventCount++
		case <-timeout:
			break loop
		}
	}
	if eventCount != 1 {
		t.Errorf("Expected 1 debounced event, got %d", eventCount)
	}
}

func TestWatcher_Matches(t *testing.T) {
	dir := t.TempDir()
	explicit := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(explicit, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(dir, "docs")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	w := newTestWatcher(t, []string{sub, explicit}, fileutil.ScanOptions{Exclude: []string{"drafts/**"}})

	tests := []struct {
		path string
		want bool
	}{
		{explicit, true},
		{filepath.Join(dir, "other.txt"), false},
		{filepath.Join(sub, "a.md"), true},
		{filepath.Join(sub, "nested", "b.rst"), true},
		{filepath.Join(sub, "drafts", "c.md"), false},
		{filepath.Join(sub, "d.go"), false},
		{filepath.Join(dir, "outside.md"), false},
	}
	for _, tt := range tests {
		if got := w.Matches(tt.path); got != tt.want {
			t.Errorf("Matches(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestWatcher_Close(t *testing.T) {
	w, err := New([]string{t.TempDir()}, fileutil.ScanOptions{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Second Close() error = %v", err)
	}
}

// Package watch reports changes to documents under a set of paths so the
// watch command can rerun exactly the documents that changed.
package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/harrison/doctest/internal/fileutil"
)

// Op is the kind of change observed for a document.
type Op int

const (
	// Changed covers creation and writes.
	Changed Op = iota
	// Removed covers deletion and renames away.
	Removed
)

func (op Op) String() string {
	switch op {
	case Changed:
		return "changed"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// Event is one coalesced change to a document.
type Event struct {
	Path      string
	Op        Op
	Timestamp time.Time
}

// DefaultDebounceDelay coalesces the burst of events editors emit per save.
const DefaultDebounceDelay = 150 * time.Millisecond

// Watcher watches directories recursively plus individually named files.
type Watcher struct {
	watcher *fsnotify.Watcher
	events  chan Event
	errors  chan error
	done    chan struct{}

	roots []string
	files map[string]bool
	opts  fileutil.ScanOptions

	mu            sync.Mutex
	debounceDelay time.Duration
	pending       map[string]*time.Timer
	closed        bool
}

// New starts watching paths. Directories are watched recursively and their
// files filtered by opts; files are watched regardless of opts.
func New(paths []string, opts fileutil.ScanOptions) (*Watcher, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		paths = []string{"."}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	w := &Watcher{
		watcher:       fsw,
		events:        make(chan Event, 100),
		errors:        make(chan error, 10),
		done:          make(chan struct{}),
		files:         make(map[string]bool),
		opts:          opts,
		debounceDelay: DefaultDebounceDelay,
		pending:       make(map[string]*time.Timer),
	}

	for _, p := range paths {
		p = filepath.Clean(p)
		info, err := os.Stat(p)
		if err != nil {
			fsw.Close()
			return nil, fmt.Errorf("failed to access %s: %w", p, err)
		}
		if !info.IsDir() {
			w.files[p] = true
			if err := fsw.Add(filepath.Dir(p)); err != nil {
				fsw.Close()
				return nil, fmt.Errorf("failed to watch %s: %w", p, err)
			}
			continue
		}
		w.roots = append(w.roots, p)
		if err := w.addRecursive(p); err != nil {
			fsw.Close()
			return nil, err
		}
	}

	go w.processEvents()
	return w, nil
}

// skipDir mirrors the directories discovery never descends into.
func (w *Watcher) skipDir(dir string) bool {
	if slices.Contains(w.roots, dir) {
		return false
	}
	name := filepath.Base(dir)
	excluded := w.opts.ExcludeDirs
	if excluded == nil {
		excluded = fileutil.DefaultExcludeDirs
	}
	return strings.HasPrefix(name, ".") || slices.Contains(excluded, name)
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.skipDir(path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil && !os.IsPermission(err) {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) processEvents() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.sendError(err)
		}
	}
}

func (w *Watcher) sendError(err error) {
	select {
	case w.errors <- err:
	default:
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := filepath.Clean(event.Name)

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if w.underRoot(path) {
				if err := w.addRecursive(path); err != nil {
					w.sendError(err)
				}
			}
			return
		}
	}

	if !w.Matches(path) {
		return
	}

	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		w.debounce(path, Changed)
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.debounce(path, Removed)
	}
}

func (w *Watcher) underRoot(path string) bool {
	for _, root := range w.roots {
		if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
			return true
		}
	}
	return false
}

// Matches reports whether a change to path is reported: either path was
// named explicitly or it lies under a watched directory and passes the
// include and exclude globs.
func (w *Watcher) Matches(path string) bool {
	path = filepath.Clean(path)
	if w.files[path] {
		return true
	}
	for _, root := range w.roots {
		rel, err := filepath.Rel(root, path)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		if w.opts.Matches(filepath.ToSlash(rel)) {
			return true
		}
	}
	return false
}

// debounce delivers the last op seen for path once it has been quiet for
// the debounce delay.
func (w *Watcher) debounce(path string, op Op) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if timer, ok := w.pending[path]; ok {
		timer.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounceDelay, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.send(Event{Path: path, Op: op, Timestamp: time.Now()})
	})
}

func (w *Watcher) send(event Event) {
	select {
	case w.events <- event:
	case <-w.done:
	default:
	}
}

// Events returns the channel of coalesced document changes.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors returns watcher errors. Errors are dropped when nobody reads them.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// SetDebounceDelay changes the debounce delay for later events.
func (w *Watcher) SetDebounceDelay(delay time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounceDelay = delay
}

// Close stops watching and releases resources. It is safe to call twice.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for _, timer := range w.pending {
		timer.Stop()
	}
	w.pending = nil
	w.mu.Unlock()

	close(w.done)
	return w.watcher.Close()
}

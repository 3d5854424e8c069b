package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultInclude matches every document format the parsers understand.
var DefaultInclude = []string{"**/*.md", "**/*.markdown", "**/*.myst", "**/*.rst", "**/*.rest"}

// DefaultExcludeDirs are never descended into.
var DefaultExcludeDirs = []string{"node_modules", "vendor", "_build"}

// ScanOptions configures document discovery
type ScanOptions struct {
	// Include holds doublestar patterns matched against the slash-separated
	// path relative to the scanned root. Empty means DefaultInclude.
	Include []string
	// Exclude holds doublestar patterns removing files or whole directories.
	Exclude []string
	// ExcludeDirs is a list of directory names to skip (e.g., "node_modules")
	ExcludeDirs []string
	// MaxDepth limits recursion depth (0 = unlimited, 1 = root dir only)
	MaxDepth int
}

// ScanResult contains the results of a directory scan
type ScanResult struct {
	// Files contains the matched paths, sorted and without duplicates
	Files []string
	// Errors contains any errors encountered during scanning
	Errors []error
}

// Validate reports the first malformed pattern.
func (o ScanOptions) Validate() error {
	for _, p := range append(append([]string{}, o.Include...), o.Exclude...) {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid glob pattern: %q", p)
		}
	}
	return nil
}

// Discover resolves paths into document files. A path naming a file is
// taken as is; a directory is walked and filtered by the options.
func Discover(paths []string, opts ScanOptions) (*ScanResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		paths = []string{"."}
	}

	result := &ScanResult{
		Files:  make([]string, 0),
		Errors: make([]error, 0),
	}
	seen := make(map[string]bool)
	add := func(path string) {
		path = filepath.Clean(path)
		if !seen[path] {
			seen[path] = true
			result.Files = append(result.Files, path)
		}
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("failed to access %s: %w", p, err)
		}
		if !info.IsDir() {
			add(p)
			continue
		}
		scanned, err := ScanDirectory(p, opts)
		if err != nil {
			return nil, err
		}
		for _, f := range scanned.Files {
			add(f)
		}
		result.Errors = append(result.Errors, scanned.Errors...)
	}

	sort.Strings(result.Files)
	return result, nil
}

// ScanDirectory walks dir and returns every file matching the options.
func ScanDirectory(dir string, opts ScanOptions) (*ScanResult, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to access directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", dir)
	}

	include := opts.Include
	if len(include) == 0 {
		include = DefaultInclude
	}
	excludeDirs := opts.ExcludeDirs
	if excludeDirs == nil {
		excludeDirs = DefaultExcludeDirs
	}
	excludeMap := make(map[string]bool)
	for _, name := range excludeDirs {
		excludeMap[name] = true
	}

	result := &ScanResult{
		Files:  make([]string, 0),
		Errors: make([]error, 0),
	}

	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("error accessing %s: %w", path, err))
			return nil // Continue walking
		}
		if path == dir {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("failed to resolve path %s: %w", path, err))
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if excludeMap[d.Name()] || strings.HasPrefix(d.Name(), ".") || matchAny(opts.Exclude, rel) {
				return filepath.SkipDir
			}
			if opts.MaxDepth > 0 && strings.Count(rel, "/")+1 >= opts.MaxDepth {
				return filepath.SkipDir
			}
			return nil
		}

		if !matchAny(include, rel) || matchAny(opts.Exclude, rel) {
			return nil
		}
		result.Files = append(result.Files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	sort.Strings(result.Files)
	return result, nil
}

// Matches reports whether the slash-separated path rel, relative to a
// scanned root, would be discovered.
func (o ScanOptions) Matches(rel string) bool {
	include := o.Include
	if len(include) == 0 {
		include = DefaultInclude
	}
	return matchAny(include, rel) && !matchAny(o.Exclude, rel)
}

// matchAny reports whether rel matches one of patterns. Patterns are
// validated up front, so match errors cannot occur.
func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

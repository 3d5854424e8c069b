// Package doctesting runs documentation examples from go test.
//
// Each document becomes one subtest. Failing examples are reported with
// the same text the doctest command prints, and documents without examples
// are skipped:
//
//	func TestDocs(t *testing.T) {
//		doctesting.RunGlob(t, "../../docs/**/*.md", doctesting.WithFlags("ELLIPSIS"))
//	}
package doctesting

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/harrison/doctest/internal/models"
	"github.com/harrison/doctest/internal/report"
	"github.com/harrison/doctest/internal/suite"
)

// Option configures RunFile and RunGlob.
type Option func(*settings)

type settings struct {
	flags         []string
	fixtures      map[string]any
	autoImports   []string
	targetVersion string
	timeout       time.Duration
	verbose       bool
}

// WithFlags sets the default option flags, e.g. "ELLIPSIS".
func WithFlags(names ...string) Option {
	return func(s *settings) { s.flags = append(s.flags, names...) }
}

// WithFixtures binds values in every document's namespace.
func WithFixtures(fixtures map[string]any) Option {
	return func(s *settings) {
		if s.fixtures == nil {
			s.fixtures = make(map[string]any, len(fixtures))
		}
		for k, v := range fixtures {
			s.fixtures[k] = v
		}
	}
}

// WithAutoImports replaces the packages imported into every namespace.
// The default is fmt.
func WithAutoImports(pkgs ...string) Option {
	return func(s *settings) { s.autoImports = pkgs }
}

// WithTargetVersion sets the Go version checked by version gates.
func WithTargetVersion(v string) Option {
	return func(s *settings) { s.targetVersion = v }
}

// WithTimeout limits the time spent on one document.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// WithVerbose includes exception traces and skipped examples in reports.
func WithVerbose() Option {
	return func(s *settings) { s.verbose = true }
}

// reporter is the part of testing.TB a document check needs.
type reporter interface {
	Helper()
	Error(args ...any)
	Fatal(args ...any)
	Skip(args ...any)
}

// RunFile runs the document at path as a subtest of t.
func RunFile(t *testing.T, path string, opts ...Option) {
	t.Helper()
	s, verbose, err := newSuite(opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Run(filepath.ToSlash(path), func(t *testing.T) {
		check(t, s, path, verbose)
	})
}

// RunGlob runs every document matching the doublestar pattern, one subtest
// each. A pattern matching nothing fails t.
func RunGlob(t *testing.T, pattern string, opts ...Option) {
	t.Helper()
	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		t.Fatalf("invalid pattern %q: %v", pattern, err)
	}
	if len(matches) == 0 {
		t.Fatalf("no documents match %q", pattern)
	}

	s, verbose, err := newSuite(opts)
	if err != nil {
		t.Fatal(err)
	}
	for _, path := range matches {
		t.Run(filepath.ToSlash(path), func(t *testing.T) {
			check(t, s, path, verbose)
		})
	}
}

func newSuite(opts []Option) (*suite.Suite, bool, error) {
	cfg := settings{autoImports: []string{"fmt"}}
	for _, opt := range opts {
		opt(&cfg)
	}
	defaults, err := models.ParseFlagNames(cfg.flags)
	if err != nil {
		return nil, false, err
	}
	s := suite.New(suite.Options{
		Defaults:      defaults,
		TargetVersion: cfg.targetVersion,
		AutoImports:   cfg.autoImports,
		Fixtures:      cfg.fixtures,
		Timeout:       cfg.timeout,
	})
	return s, cfg.verbose, nil
}

// check runs one document and reports it through t.
func check(t reporter, s *suite.Suite, path string, verbose bool) {
	t.Helper()
	doc := s.RunDocument(context.Background(), path)
	if doc.Err != nil {
		t.Fatal(doc.Err)
		return
	}
	if doc.SetupErr != nil {
		t.Error(doc.SetupErr)
	}
	if doc.Summary.Empty {
		t.Skip("no examples")
		return
	}
	if doc.Summary.Passed() {
		return
	}

	var b strings.Builder
	if err := report.Format(&b, doc.Summary, report.FormatOptions{ShowSkips: verbose, Verbose: verbose}); err != nil {
		t.Error(err)
		return
	}
	t.Error("\n" + b.String())
}

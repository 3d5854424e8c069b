// Package suite runs documents through the parse, walk and run pipeline and
// fans independent documents out over a bounded worker pool.
package suite

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/harrison/doctest/internal/doctree"
	"github.com/harrison/doctest/internal/models"
	"github.com/harrison/doctest/internal/report"
	"github.com/harrison/doctest/internal/runner"
	"github.com/harrison/doctest/internal/walker"
)

// Phase names the pipeline step a document failed in.
type Phase int

// Pipeline phases
const (
	PhaseParse Phase = iota
	PhaseWalk
	PhaseRun
)

func (p Phase) String() string {
	switch p {
	case PhaseParse:
		return "parse"
	case PhaseWalk:
		return "walk"
	case PhaseRun:
		return "run"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// DocumentError is an error local to one document. It never stops other
// documents.
type DocumentError struct {
	Path  string
	Phase Phase
	Err   error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("%s: %s failed: %v", e.Path, e.Phase, e.Err)
}

func (e *DocumentError) Unwrap() error {
	return e.Err
}

// Logger receives pipeline diagnostics.
type Logger interface {
	LogDebug(message string)
	LogWarn(message string)
}

// Options configures a Suite.
type Options struct {
	Defaults         models.FlagSet
	TargetVersion    string
	TracebackHeaders []string
	AutoImports      []string
	// Fixtures seed every document's namespace.
	Fixtures map[string]any
	// MaxConcurrency bounds parallel documents; 0 means runtime.NumCPU().
	MaxConcurrency int
	// Timeout is the wall-clock limit per document; 0 disables it.
	Timeout time.Duration
	// Evaluator overrides the yaegi evaluator.
	Evaluator runner.EvaluatorFactory
	Logger    Logger
	// OnDocument is called once per finished document. Calls are serialized.
	OnDocument func(DocumentResult)
}

// DocumentResult is the outcome of one document.
type DocumentResult struct {
	Path       string
	Group      *models.Group
	Summary    report.Summary
	SetupErr   error
	CleanupErr error
	// Err is a *DocumentError when the pipeline stopped early. Outcomes
	// collected before the error are kept in Summary.
	Err      error
	Duration time.Duration
}

// Passed reports whether the document contributes a passing verdict. A
// pipeline error or a failed setup fails the document.
func (d DocumentResult) Passed() bool {
	return d.Err == nil && d.SetupErr == nil && d.Summary.Passed()
}

// Result aggregates every document in discovery order.
type Result struct {
	Documents []DocumentResult
	Duration  time.Duration
}

// Passed reports whether every document passed.
func (r *Result) Passed() bool {
	for _, d := range r.Documents {
		if !d.Passed() {
			return false
		}
	}
	return true
}

// Summaries returns the per-document summaries.
func (r *Result) Summaries() []report.Summary {
	out := make([]report.Summary, 0, len(r.Documents))
	for _, d := range r.Documents {
		out = append(out, d.Summary)
	}
	return out
}

// Totals sums outcome counts over all documents.
func (r *Result) Totals() (pass, fail, unexpected, skip int) {
	for _, d := range r.Documents {
		pass += d.Summary.Pass
		fail += d.Summary.Fail
		unexpected += d.Summary.Unexpected
		skip += d.Summary.Skip
	}
	return pass, fail, unexpected, skip
}

// FailedDocuments returns the number of documents that did not pass.
func (r *Result) FailedDocuments() int {
	n := 0
	for _, d := range r.Documents {
		if !d.Passed() {
			n++
		}
	}
	return n
}

// Suite runs documents.
type Suite struct {
	opts   Options
	runner *runner.Runner
	mu     sync.Mutex
}

// New creates a Suite.
func New(opts Options) *Suite {
	factory := opts.Evaluator
	if factory == nil {
		factory = runner.NewYaegiFactory(runner.YaegiOptions{AutoImports: opts.AutoImports})
	}
	var rl runner.Logger
	if opts.Logger != nil {
		rl = opts.Logger
	}
	return &Suite{opts: opts, runner: runner.NewRunner(factory, rl)}
}

// Collect parses path and walks it into a group without executing anything.
// The returned group holds the examples collected before an error.
func (s *Suite) Collect(path string) (*models.Group, error) {
	root, err := doctree.ParseFile(path)
	if err != nil {
		return models.NewGroup(path), &DocumentError{Path: path, Phase: PhaseParse, Err: err}
	}

	var wl walker.Logger
	if s.opts.Logger != nil {
		wl = s.opts.Logger
	}
	group, err := walker.Walk(root, walker.Options{
		Path:             path,
		Defaults:         s.opts.Defaults,
		TargetVersion:    s.opts.TargetVersion,
		TracebackHeaders: s.opts.TracebackHeaders,
		Logger:           wl,
	})
	if err != nil {
		return group, &DocumentError{Path: path, Phase: PhaseWalk, Err: err}
	}
	return group, nil
}

// RunDocument collects and executes one document.
func (s *Suite) RunDocument(ctx context.Context, path string) DocumentResult {
	start := time.Now()
	res := DocumentResult{Path: path}

	group, err := s.Collect(path)
	res.Group = group
	if err != nil {
		res.Err = err
		res.Summary = report.Summarize(path, nil)
		res.Duration = time.Since(start)
		return res
	}
	group.Seed(s.opts.Fixtures)

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	run, err := s.runner.Run(ctx, group)
	res.Summary = report.Summarize(path, run.Outcomes)
	res.SetupErr = run.SetupErr
	res.CleanupErr = run.CleanupErr
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", s.opts.Timeout, err)
		}
		res.Err = &DocumentError{Path: path, Phase: PhaseRun, Err: err}
	}
	res.Duration = time.Since(start)
	return res
}

// Run executes every path concurrently, bounded by MaxConcurrency. Results
// are returned in the order of paths. The returned error is only set when
// ctx was cancelled; document failures are reported per document.
func (s *Suite) Run(ctx context.Context, paths []string) (*Result, error) {
	start := time.Now()
	result := &Result{Documents: make([]DocumentResult, len(paths))}

	limit := s.opts.MaxConcurrency
	if limit <= 0 {
		limit = runtime.NumCPU()
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for i, path := range paths {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				result.Documents[i] = DocumentResult{
					Path:    path,
					Summary: report.Summarize(path, nil),
					Err:     &DocumentError{Path: path, Phase: PhaseRun, Err: ctx.Err()},
				}
				return nil
			}
			doc := s.RunDocument(ctx, path)
			result.Documents[i] = doc
			s.notify(doc)
			return nil
		})
	}
	_ = g.Wait()

	// Paths never scheduled because of cancellation still get an entry.
	for i, path := range paths {
		if result.Documents[i].Path == "" {
			result.Documents[i] = DocumentResult{
				Path:    path,
				Summary: report.Summarize(path, nil),
				Err:     &DocumentError{Path: path, Phase: PhaseRun, Err: context.Canceled},
			}
		}
	}
	result.Duration = time.Since(start)
	return result, ctx.Err()
}

func (s *Suite) notify(doc DocumentResult) {
	if doc.Err != nil && s.opts.Logger != nil {
		s.opts.Logger.LogWarn(doc.Err.Error())
	}
	if s.opts.OnDocument == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.OnDocument(doc)
}

// Package runner executes a Document Example Group in document order against
// one namespace and classifies every example as pass, fail,
// unexpected-exception or skip.
package runner

import (
	"context"
	"fmt"

	"github.com/harrison/doctest/internal/compare"
	"github.com/harrison/doctest/internal/models"
)

// Skip reasons
const (
	ReasonSkipFlag    = "SKIP flag"
	ReasonSetupFailed = "setup failed"
)

// Logger receives per-example progress.
type Logger interface {
	LogDebug(message string)
}

// Result holds the outcomes of one group in example order.
type Result struct {
	Outcomes   []models.Outcome
	SetupErr   error // Set when a setup snippet raised; every example was skipped
	CleanupErr error // Set when a cleanup snippet raised
}

// Runner executes groups. A Runner may be shared by goroutines working on
// different groups; every Run gets its own evaluator.
type Runner struct {
	factory EvaluatorFactory
	logger  Logger
}

// NewRunner creates a runner. logger may be nil.
func NewRunner(factory EvaluatorFactory, logger Logger) *Runner {
	return &Runner{factory: factory, logger: logger}
}

// Run executes setup snippets, every example and then cleanup snippets. A
// failing example never stops the loop. When ctx is cancelled the outcomes
// collected so far are returned together with the error.
func (r *Runner) Run(ctx context.Context, group *models.Group) (*Result, error) {
	res := &Result{Outcomes: make([]models.Outcome, 0, len(group.Examples))}

	eval, err := r.factory(group)
	if err != nil {
		return res, fmt.Errorf("failed to create evaluator for %s: %w", group.SourcePath, err)
	}
	defer eval.Close()

	conds := newConditions(eval)

	for _, s := range group.Setup {
		skip, err := conds.holds(ctx, s.Block, s.SkipIf)
		if err != nil {
			if ctx.Err() != nil {
				return res, err
			}
			res.SetupErr = fmt.Errorf("setup at line %d: %w", s.Line, err)
			break
		}
		if skip {
			continue
		}
		exec, err := eval.Exec(ctx, s.Code)
		if err != nil {
			return res, err
		}
		if exec.Raised != nil {
			res.SetupErr = fmt.Errorf("setup at line %d raised %s", s.Line, exec.Raised.Summary())
			break
		}
	}

	for i := range group.Examples {
		ex := &group.Examples[i]
		if res.SetupErr != nil {
			res.Outcomes = append(res.Outcomes, skipped(ex, ReasonSetupFailed))
			continue
		}
		outcome, err := r.runExample(ctx, eval, conds, ex)
		if err != nil {
			return res, err
		}
		r.debug(fmt.Sprintf("%s: %s", ex.Location(group.SourcePath), outcome.Kind))
		res.Outcomes = append(res.Outcomes, outcome)
	}

	for _, s := range group.Cleanup {
		skip, err := conds.holds(ctx, s.Block, s.SkipIf)
		if err != nil || skip {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			continue
		}
		exec, err := eval.Exec(ctx, s.Code)
		if err != nil {
			return res, err
		}
		if exec.Raised != nil && res.CleanupErr == nil {
			res.CleanupErr = fmt.Errorf("cleanup at line %d raised %s", s.Line, exec.Raised.Summary())
		}
	}
	return res, nil
}

func (r *Runner) runExample(ctx context.Context, eval Evaluator, conds *conditions, ex *models.Example) (models.Outcome, error) {
	if ex.Flags.Has(models.Skip) {
		return skipped(ex, ReasonSkipFlag), nil
	}
	if ex.SkipReason != "" {
		return skipped(ex, ex.SkipReason), nil
	}
	skip, err := conds.holds(ctx, ex.Block, ex.SkipIf)
	if err != nil {
		if ctx.Err() != nil {
			return models.Outcome{}, err
		}
		return models.Outcome{
			Kind:    models.OutcomeUnexpected,
			Example: ex,
			Raised:  &models.Raised{Type: "SkipIfError", Chain: []string{"SkipIfError", "error"}, Message: err.Error()},
			Detail:  "skipif: " + err.Error(),
		}, nil
	}
	if skip {
		return skipped(ex, "skipif "+ex.SkipIf), nil
	}

	exec, err := eval.Exec(ctx, ex.Code())
	if err != nil {
		return models.Outcome{}, err
	}
	return Check(ex, exec), nil
}

// Check compares an execution against the example's expectation.
func Check(ex *models.Example, exec Execution) models.Outcome {
	out := models.Outcome{Example: ex, Got: exec.Output, Raised: exec.Raised}

	switch {
	case ex.Exception != nil:
		if exec.Raised != nil && compare.MatchException(ex.Exception, exec.Raised, ex.Flags) {
			out.Kind = models.OutcomePass
		} else {
			out.Kind = models.OutcomeFail
			out.Detail = compare.ExceptionDifference(ex.Exception, exec.Raised)
		}
	case exec.Raised != nil:
		out.Kind = models.OutcomeUnexpected
		out.Detail = compare.ExceptionDifference(nil, exec.Raised)
	case compare.Match(exec.Output, ex.Want, ex.Flags):
		out.Kind = models.OutcomePass
	default:
		out.Kind = models.OutcomeFail
		out.Detail = compare.Difference(exec.Output, ex.Want, ex.Flags)
	}
	return out
}

func skipped(ex *models.Example, reason string) models.Outcome {
	return models.Outcome{Kind: models.OutcomeSkip, Example: ex, Detail: reason}
}

func (r *Runner) debug(msg string) {
	if r.logger != nil {
		r.logger.LogDebug(msg)
	}
}

// conditions evaluates skipif expressions once per block.
type conditions struct {
	eval  Evaluator
	cache map[[2]string]bool
}

func newConditions(eval Evaluator) *conditions {
	return &conditions{eval: eval, cache: map[[2]string]bool{}}
}

func (c *conditions) holds(ctx context.Context, block, expr string) (bool, error) {
	if expr == "" {
		return false, nil
	}
	key := [2]string{block, expr}
	if v, ok := c.cache[key]; ok {
		return v, nil
	}
	v, err := c.eval.Truth(ctx, expr)
	if err != nil {
		return false, err
	}
	c.cache[key] = v
	return v, nil
}

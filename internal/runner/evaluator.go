package runner

import (
	"context"

	"github.com/harrison/doctest/internal/models"
)

// Execution is what running one unit of source produced.
type Execution struct {
	Output string         // Captured standard output
	Raised *models.Raised // Exception raised by the source, nil on success
}

// Evaluator executes source against one namespace. Implementations are used
// by a single goroutine and need no locking.
type Evaluator interface {
	// Exec runs src. Exceptions raised by src are reported in the Execution;
	// the error return is for failures of the evaluator itself, such as a
	// cancelled context.
	Exec(ctx context.Context, src string) (Execution, error)
	// Truth evaluates a boolean expression in the namespace.
	Truth(ctx context.Context, expr string) (bool, error)
	// Close releases the namespace.
	Close() error
}

// EvaluatorFactory creates a fresh namespace for one group, seeded from the
// group's Globs.
type EvaluatorFactory func(group *models.Group) (Evaluator, error)

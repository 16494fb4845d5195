package pipe

import (
	"github.com/renkit/renotize/pkg/checkpoint"
	"github.com/renkit/renotize/pkg/context"
)

// Piper defines the interface for all pipeline steps.
// Each pipe represents a distinct phase of a run and is executed
// sequentially by the pipeline.
type Piper interface {
	// String returns the pipe description for logging.
	String() string

	// Run executes the pipe's logic. The context provides access to configuration,
	// logging, and cancellation signals. To indicate an intentional skip (not an
	// error), return an error implementing IsSkip.
	Run(ctx *context.Context) error
}

// Stage is a pipe with a stable identity recorded in checkpoints.
type Stage interface {
	Piper

	// Name is the stage identifier, e.g. "sign-app".
	Name() string

	// Output returns the artifact the stage produced or modified.
	Output(ctx *context.Context) string
}

// Restorer is implemented by stages that can be skipped on resume. Restore
// re-establishes the context a completed stage left behind from its
// record, failing when the recorded output is no longer usable.
type Restorer interface {
	Restore(ctx *context.Context, rec *checkpoint.Stage) error
}

// IsSkip indicates that a pipe was intentionally skipped.
// This is not an error condition but a normal part of pipeline execution.
type IsSkip interface {
	IsSkip() bool
}

// SkipError represents an intentional skip of a pipeline step.
type SkipError struct {
	Reason string
}

func (e SkipError) Error() string { return e.Reason }
func (e SkipError) IsSkip() bool  { return true }

// Skip creates a new skip error with the given reason.
func Skip(reason string) SkipError {
	return SkipError{Reason: reason}
}

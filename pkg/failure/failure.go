// Package failure defines the error taxonomy shared by every stage of the
// pipeline and maps each kind to a process exit code.
package failure

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failure by the component that produced it.
type Kind int

const (
	Unknown Kind = iota
	Input
	Signing
	Submission
	Poll
	Timeout
	Rejected
	Staple
	Packaging
	Precondition
	Cancelled
)

var kindNames = map[Kind]string{
	Unknown:      "error",
	Input:        "input error",
	Signing:      "signing error",
	Submission:   "submission error",
	Poll:         "poll error",
	Timeout:      "timeout",
	Rejected:     "rejected",
	Staple:       "staple error",
	Packaging:    "packaging error",
	Precondition: "precondition error",
	Cancelled:    "cancelled",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ExitCode returns the process exit code for the kind.
func (k Kind) ExitCode() int {
	switch k {
	case Input:
		return 2
	case Signing:
		return 3
	case Submission:
		return 4
	case Poll:
		return 5
	case Timeout:
		return 6
	case Rejected:
		return 7
	case Staple:
		return 8
	case Packaging:
		return 9
	case Precondition:
		return 10
	case Cancelled:
		return 130
	default:
		return 1
	}
}

// Error is a classified failure. Stage is filled in by the orchestrator,
// SubmissionID by the notarization components once one is known.
type Error struct {
	Kind         Kind
	Stage        string
	SubmissionID string
	Err          error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Stage != "" {
		msg = e.Stage + ": " + msg
	}
	if e.SubmissionID != "" && (e.Kind == Timeout || e.Kind == Poll) {
		msg += fmt.Sprintf(" (submission %s remains valid; resume with: renotize status -u %s)",
			e.SubmissionID, e.SubmissionID)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error from a format string.
func New(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Wrap classifies err with kind. Errors that already carry a kind keep it,
// and context cancellation is always reported as Cancelled.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		kind = Cancelled
	}
	return &Error{Kind: kind, Err: err}
}

// Wrapf wraps err with a message and classifies it.
func Wrapf(kind Kind, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)
	var fe *Error
	if errors.As(err, &fe) {
		return &Error{Kind: fe.Kind, Stage: fe.Stage, SubmissionID: fe.SubmissionID, Err: fmt.Errorf("%s: %w", msg, fe.Err)}
	}
	return Wrap(kind, fmt.Errorf("%s: %w", msg, err))
}

// WithStage attaches a stage name. An existing stage is never replaced.
func WithStage(err error, stage string) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		if fe.Stage != "" {
			return err
		}
		cp := *fe
		cp.Stage = stage
		return &cp
	}
	kind := Unknown
	if errors.Is(err, context.Canceled) {
		kind = Cancelled
	}
	return &Error{Kind: kind, Stage: stage, Err: err}
}

// WithSubmission attaches the submission ID the failure relates to.
func WithSubmission(err error, id string) error {
	if err == nil || id == "" {
		return err
	}
	var fe *Error
	if errors.As(err, &fe) {
		cp := *fe
		cp.SubmissionID = id
		return &cp
	}
	return &Error{Kind: Unknown, SubmissionID: id, Err: err}
}

// Cancel reports a cancelled operation.
func Cancel(err error) error {
	if err == nil {
		err = context.Canceled
	}
	return &Error{Kind: Cancelled, Err: err}
}

// KindOf returns the kind of err, or Unknown.
func KindOf(err error) Kind {
	if err == nil {
		return Unknown
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.Canceled) {
		return Cancelled
	}
	return Unknown
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// ExitCode maps err to a process exit code; nil maps to 0.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return KindOf(err).ExitCode()
}

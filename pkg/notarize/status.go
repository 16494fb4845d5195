package notarize

import (
	"context"
	"time"

	"github.com/renkit/renotize/pkg/notary"
)

// State is the verdict of a notarization submission.
type State int

const (
	InProgress State = iota
	Accepted
	Rejected
)

func (s State) String() string {
	switch s {
	case Accepted:
		return "Accepted"
	case Rejected:
		return "Rejected"
	default:
		return "In Progress"
	}
}

// Status is the state of one submission.
type Status struct {
	State        State
	SubmissionID string
	// Reason is the service's status text for rejected submissions.
	Reason string
	LogURL string
}

// Terminal reports whether the service has reached a verdict.
func (s Status) Terminal() bool {
	return s.State != InProgress
}

// StateFromService maps a service status string. Unknown strings are
// treated as still in progress.
func StateFromService(status string) State {
	switch status {
	case notary.StatusAccepted:
		return Accepted
	case notary.StatusInvalid, notary.StatusRejected:
		return Rejected
	default:
		return InProgress
	}
}

// Service is the part of the notary API the workflow uses. *notary.Client
// implements it.
type Service interface {
	Submit(ctx context.Context, path, name, sha256 string) (string, error)
	Status(ctx context.Context, id string) (*notary.Submission, error)
	LogURL(ctx context.Context, id string) (string, error)
}

// Submission identifies an upload accepted by the service.
type Submission struct {
	ID          string
	SubmittedAt time.Time
}

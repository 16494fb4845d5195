package notarize

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"code.cloudfoundry.org/clock"
	"github.com/renkit/renotize/pkg/archive"
	"github.com/renkit/renotize/pkg/command"
	"github.com/renkit/renotize/pkg/failure"
	"github.com/renkit/renotize/pkg/notary"
	"github.com/renkit/renotize/pkg/sign"
)

// Submitter uploads signed artifacts to the notary service. Apps are
// zipped first; disk images are uploaded as they are.
type Submitter struct {
	Service Service
	Runner  command.Runner
	Ditto   string
	Clock   clock.Clock
	// TempDir holds submission zips; empty means the system default.
	TempDir string
}

// Submit uploads a and returns the submission the service created. It is
// never retried: a second call creates a second submission.
func (s *Submitter) Submit(ctx context.Context, a sign.Artifact) (Submission, error) {
	if err := a.Check(); err != nil {
		return Submission{}, failure.Wrap(failure.Submission, errors.Unwrap(err))
	}
	clk := s.Clock
	if clk == nil {
		clk = clock.NewClock()
	}

	upload := a.Path
	name := a.Name()
	if a.Kind == sign.App {
		tmp, err := os.MkdirTemp(s.TempDir, "renotize-")
		if err != nil {
			return Submission{}, failure.Wrapf(failure.Submission, err, "failed to create temp dir")
		}
		defer func() { _ = os.RemoveAll(tmp) }()

		name = strings.TrimSuffix(a.Name(), ".app") + ".zip"
		upload = filepath.Join(tmp, name)
		runner := s.Runner
		if runner == nil {
			runner = command.Exec{}
		}
		if err := archive.CreateZip(ctx, runner, s.Ditto, a.Path, upload); err != nil {
			if ctx.Err() != nil {
				return Submission{}, failure.Cancel(ctx.Err())
			}
			return Submission{}, failure.Wrapf(failure.Submission, err, "failed to create submission zip")
		}
	}

	sum, err := archive.ComputeSHA256(upload)
	if err != nil {
		return Submission{}, failure.Wrap(failure.Submission, err)
	}

	if err := ctx.Err(); err != nil {
		return Submission{}, failure.Cancel(err)
	}

	submittedAt := clk.Now()
	id, err := s.Service.Submit(ctx, upload, name, sum)
	if err != nil {
		if ctx.Err() != nil {
			return Submission{ID: id, SubmittedAt: submittedAt}, failure.WithSubmission(failure.Cancel(ctx.Err()), id)
		}
		return Submission{ID: id, SubmittedAt: submittedAt}, failure.WithSubmission(describeSubmitError(err), id)
	}
	return Submission{ID: id, SubmittedAt: submittedAt}, nil
}

func describeSubmitError(err error) error {
	switch {
	case notary.IsAuth(err):
		return failure.Wrapf(failure.Submission, err, "authentication failed")
	case notary.IsRateLimited(err):
		return failure.Wrapf(failure.Submission, err, "rate limit exceeded, try again later")
	case notary.IsTransient(err):
		return failure.Wrapf(failure.Submission, err, "network error")
	default:
		return failure.Wrap(failure.Submission, fmt.Errorf("submission failed: %w", err))
	}
}

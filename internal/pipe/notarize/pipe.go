package notarize

import (
	"fmt"
	"os"
	"time"

	signpipe "github.com/renkit/renotize/internal/pipe/sign"
	"github.com/renkit/renotize/pkg/checkpoint"
	"github.com/renkit/renotize/pkg/context"
	"github.com/renkit/renotize/pkg/failure"
	"github.com/renkit/renotize/pkg/notarize"
	"github.com/renkit/renotize/pkg/sign"
)

// Pipe submits the current artifact of Kind to the notary service and
// waits for the verdict. A submission recorded by an earlier run is polled
// instead of uploading again.
type Pipe struct {
	Kind sign.Kind
}

func (p Pipe) String() string { return fmt.Sprintf("notarizing %s", p.Kind) }

func (p Pipe) Name() string { return "notarize-" + p.Kind.String() }

func (p Pipe) Output(ctx *context.Context) string { return ctx.Artifacts.Path(p.Kind) }

func (p Pipe) Run(ctx *context.Context) error {
	path := ctx.Artifacts.Path(p.Kind)
	if path == "" {
		return failure.New(failure.Precondition, "no %s found to notarize — ensure the previous stages completed successfully", p.Kind)
	}
	a := sign.Artifact{Path: path, Kind: p.Kind}

	svc, err := ctx.NotaryService()
	if err != nil {
		return err
	}
	rec := ctx.Record(p.Name())

	id := rec.SubmissionID
	var since time.Time
	if id != "" {
		if rec.SubmittedAt != nil {
			since = *rec.SubmittedAt
		}
		ctx.Logger.WithField("submission", id).Infof("Resuming notarization of %s", a.Name())
	} else {
		ctx.Logger.Infof("Submitting %s to the notary service", a.Name())
		sub, err := ctx.Submitter(svc).Submit(ctx.StdCtx, a)
		if err != nil {
			return err
		}
		id, since = sub.ID, sub.SubmittedAt
		rec.Submitted(sub.ID, sub.SubmittedAt)
		if err := ctx.Save(); err != nil {
			ctx.Logger.Warnf("Failed to save checkpoint: %v", err)
		}
		ctx.Logger.WithField("submission", id).Infof("Submitted %s", a.Name())
	}

	if ctx.Inputs.NoWait {
		ctx.Verdicts[p.Kind] = notarize.Status{State: notarize.InProgress, SubmissionID: id}
		ctx.Logger.Infof("Not waiting for a verdict; check with: renotize status -u %s", id)
		return nil
	}

	poller, err := ctx.Poller(svc)
	if err != nil {
		return err
	}
	ctx.Logger.Info("Waiting for the notarization verdict (this may take several minutes)...")
	status, err := poller.AwaitVerdict(ctx.StdCtx, id, since)
	if err != nil {
		return err
	}

	if status.State == notarize.Rejected {
		// A rerun has to sign and upload a fixed artifact rather than poll
		// this one.
		rec.SubmissionID = ""
		rec.SubmittedAt = nil
		ctx.Record(signpipe.Pipe{Kind: p.Kind}.Name()).Reset()
		return notarize.RejectionError(status)
	}

	ctx.Verdicts[p.Kind] = status
	ctx.Logger.WithField("submission", id).Infof("Notarization accepted: %s", a.Name())
	return nil
}

// Restore marks the artifact as accepted under the recorded submission.
func (p Pipe) Restore(ctx *context.Context, rec *checkpoint.Stage) error {
	if rec.SubmissionID == "" {
		return fmt.Errorf("no submission recorded")
	}
	if _, err := os.Stat(rec.Output); err != nil {
		return err
	}
	ctx.Artifacts.SetPath(p.Kind, rec.Output)
	ctx.Verdicts[p.Kind] = notarize.Status{State: notarize.Accepted, SubmissionID: rec.SubmissionID}
	return nil
}

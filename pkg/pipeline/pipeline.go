// Package pipeline executes registered pipes in sequence.
//
// A full run happens in two phases:
//   - Validation: every check pipe runs before anything is written or sent
//   - Stages: the eight stages run in canonical order, recording progress
//     in the checkpoint so an interrupted run can resume
//
// Usage:
//
//	ctx := context.NewContext(context.Background(), cfg, logger)
//	ctx.Inputs = context.Inputs{ZipPath: zip, BundleID: id}
//	ctx.Checkpoint = checkpoint.Store{Path: "run.json"}
//	if err := pipeline.FullRun(ctx); err != nil {
//	    // Handle error
//	}
package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/renkit/renotize/pkg/archive"
	"github.com/renkit/renotize/pkg/checkpoint"
	"github.com/renkit/renotize/pkg/context"
	"github.com/renkit/renotize/pkg/credential"
	"github.com/renkit/renotize/pkg/failure"
	"github.com/renkit/renotize/pkg/logging"
	"github.com/renkit/renotize/pkg/pipe"
)

// RunValidation executes only the validation pipes.
func RunValidation(ctx *context.Context) error {
	return Run(ctx, pipe.ValidationPipes)
}

// FullRun validates everything, then runs the stages of a full run,
// resuming from ctx.Checkpoint when it holds progress for the same input.
func FullRun(ctx *context.Context) error {
	if err := RunValidation(ctx); err != nil {
		return err
	}
	if err := loadState(ctx, pipe.StageNames()); err != nil {
		return err
	}
	return runStages(ctx, pipe.FullRunStages)
}

// Run executes a slice of pipes in sequence. Failures are classified as
// input errors unless the pipe already classified them.
func Run(ctx *context.Context, pipes []Piper) error {
	for _, p := range pipes {
		ctx.Logger.Debugf("Running: %s", p.String())
		start := ctx.Clock.Now()

		if err := p.Run(ctx); err != nil {
			if isSkip(err) {
				ctx.Logger.Infof("Skipping: %v", err)
				continue
			}
			return classify(p, err)
		}

		ctx.Logger.Debugf("Completed: %s (%s)", p.String(), ctx.Clock.Since(start).Round(time.Millisecond))
	}
	return nil
}

func classify(p Piper, err error) error {
	if s, ok := p.(pipe.Stage); ok {
		return failure.WithStage(err, s.Name())
	}
	return failure.Wrapf(failure.Input, err, "%s", p.String())
}

// loadState resumes the checkpoint when one exists for the same input
// archive, otherwise starts a fresh state. A checkpoint whose archive was
// replaced since it was written is discarded.
func loadState(ctx *context.Context, stages []string) error {
	in := ctx.Inputs
	input, err := credential.ExpandPath(in.ZipPath)
	if err != nil {
		return failure.Wrap(failure.Input, err)
	}
	digest, err := archive.Digest(input)
	if err != nil {
		return failure.Wrapf(failure.Input, err, "input archive")
	}

	if path := ctx.Checkpoint.Path; path != "" {
		state, err := checkpoint.Load(path)
		switch {
		case err == nil:
			if !state.Matches(input, in.BundleID) {
				return failure.New(failure.Input,
					"checkpoint %s belongs to %s (%s), not %s (%s); use a different -j path or remove it",
					path, state.Input, state.BundleID, input, in.BundleID)
			}
			if !state.InputChanged(digest) {
				ctx.State = state
				ctx.Logger.WithField("checkpoint", path).Info("Resuming from checkpoint")
				return nil
			}
			ctx.Logger.WithField("checkpoint", path).Warnf("%s changed since the checkpoint was written, starting over", input)
		case errors.Is(err, fs.ErrNotExist):
		default:
			return failure.Wrap(failure.Input, err)
		}
	}

	ctx.State = checkpoint.New(input, in.BundleID, in.OutputDir, stages, ctx.Clock.Now())
	ctx.State.InputDigest = digest
	if err := ctx.Save(); err != nil {
		return failure.Wrap(failure.Input, err)
	}
	return nil
}

// runStages runs stages in order. While no stage has executed yet,
// completed stages whose output is still intact are restored and skipped.
// Once one stage executes, the records of all later stages are reset
// because their inputs are about to change.
func runStages(ctx *context.Context, stages []pipe.Stage) error {
	expected := expectedDigests(ctx.State, stages)
	resuming := true

	for i, s := range stages {
		rec := ctx.State.Stage(s.Name())

		if resuming && rec.Status == checkpoint.StatusComplete {
			reason := restore(ctx, s, rec, expected)
			if reason == "" {
				ctx.Logger.Infof("Skipping: %s (already complete)", s.Name())
				continue
			}
			ctx.Logger.Warnf("Re-running %s: %s", s.Name(), reason)
		}
		if resuming {
			resuming = false
			for _, later := range stages[i+1:] {
				ctx.State.Stage(later.Name()).Reset()
			}
		}

		input := ctx.State.Input
		if i > 0 {
			input = ctx.State.Stage(stages[i-1].Name()).Output
		}
		step := fmt.Sprintf("%d/%d", i+1, len(stages))
		if err := runStage(ctx, s, rec, input, step); err != nil {
			return err
		}
	}
	return nil
}

func runStage(ctx *context.Context, s pipe.Stage, rec *checkpoint.Stage, input, step string) error {
	ctx.Logger.WithField(logging.FieldStep, step).WithField(logging.FieldAction, s.String()).Info()
	start := ctx.Clock.Now()

	rec.Start(input)
	saveCheckpoint(ctx)

	err := s.Run(ctx)
	if err != nil && !isSkip(err) {
		err = classify(s, err)
		rec.Fail(err)
		saveCheckpoint(ctx)
		return err
	}
	if err != nil {
		ctx.Logger.Infof("Skipping: %v", err)
	}

	output := s.Output(ctx)
	digest, derr := archive.Digest(output)
	if derr != nil {
		ctx.Logger.Warnf("Failed to digest %s: %v", output, derr)
	}
	rec.Complete(output, digest, ctx.Clock.Now())
	saveCheckpoint(ctx)

	ctx.Logger.Infof("Completed: %s (%s)", s.Name(), ctx.Clock.Since(start).Round(time.Millisecond))
	return nil
}

// saveCheckpoint persists progress. A failed write is logged rather than
// failing a stage whose side effects already happened.
func saveCheckpoint(ctx *context.Context) {
	if err := ctx.Save(); err != nil {
		ctx.Logger.Warnf("Failed to save checkpoint: %v", err)
	}
}

// expectedDigests maps each output to the digest recorded by the last
// completed stage of the leading run of completed stages. Stages that
// modify a file in place (sign, staple) thus all compare against its
// latest recorded state.
func expectedDigests(state *checkpoint.State, stages []pipe.Stage) map[string]string {
	out := map[string]string{}
	for _, s := range stages {
		rec := state.Stage(s.Name())
		if rec.Status != checkpoint.StatusComplete {
			break
		}
		if rec.Output != "" {
			out[rec.Output] = rec.Digest
		}
	}
	return out
}

// restore returns why a completed stage cannot be skipped, or "".
func restore(ctx *context.Context, s pipe.Stage, rec *checkpoint.Stage, expected map[string]string) string {
	r, ok := s.(pipe.Restorer)
	if !ok {
		return "stage cannot be resumed"
	}
	if err := r.Restore(ctx, rec); err != nil {
		return err.Error()
	}
	if want := expected[rec.Output]; want != "" {
		got, err := archive.Digest(rec.Output)
		if err != nil {
			return err.Error()
		}
		if got != want {
			return fmt.Sprintf("%s changed since it was recorded", rec.Output)
		}
	}
	return ""
}

func isSkip(err error) bool {
	var s pipe.IsSkip
	return errors.As(err, &s) && s.IsSkip()
}

// Piper is re-exported for convenience within the pipeline package.
type Piper = pipe.Piper

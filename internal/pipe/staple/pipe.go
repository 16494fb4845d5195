package staple

import (
	"fmt"
	"os"

	"github.com/renkit/renotize/pkg/checkpoint"
	"github.com/renkit/renotize/pkg/context"
	"github.com/renkit/renotize/pkg/failure"
	"github.com/renkit/renotize/pkg/notarize"
	"github.com/renkit/renotize/pkg/sign"
)

// Pipe staples the notarization ticket to the current artifact of Kind.
type Pipe struct {
	Kind sign.Kind
}

func (p Pipe) String() string { return fmt.Sprintf("stapling %s", p.Kind) }

func (p Pipe) Name() string { return "staple-" + p.Kind.String() }

func (p Pipe) Output(ctx *context.Context) string { return ctx.Artifacts.Path(p.Kind) }

func (p Pipe) Run(ctx *context.Context) error {
	if reason := skipReason(ctx); reason != "" {
		return skipError(reason)
	}
	path := ctx.Artifacts.Path(p.Kind)
	if path == "" {
		return failure.New(failure.Precondition, "no %s found to staple — ensure the previous stages completed successfully", p.Kind)
	}
	a := sign.Artifact{Path: path, Kind: p.Kind}

	stapler, err := ctx.Stapler()
	if err != nil {
		return err
	}

	ctx.Logger.Infof("Stapling notarization ticket to %s", a.Name())
	output, err := stapler.Staple(ctx.StdCtx, a, ctx.Verdicts[p.Kind])
	ctx.Logger.Debug(output)
	if err != nil {
		return err
	}

	if ctx.Config.Staple.Assess {
		ctx.Logger.Info("Verifying Gatekeeper assessment")
		output, err := notarize.RunAssess(ctx.StdCtx, ctx.Runner, a)
		ctx.Logger.Debug(output)
		if err != nil {
			return failure.Wrap(failure.Staple, err)
		}
	}

	ctx.Logger.Infof("Stapled: %s", path)
	return nil
}

// Restore picks up the artifact a previous run stapled.
func (p Pipe) Restore(ctx *context.Context, rec *checkpoint.Stage) error {
	if _, err := os.Stat(rec.Output); err != nil {
		return err
	}
	ctx.Artifacts.SetPath(p.Kind, rec.Output)
	return nil
}

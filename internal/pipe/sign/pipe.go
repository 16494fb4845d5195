package sign

import (
	"fmt"
	"os"

	"github.com/renkit/renotize/pkg/checkpoint"
	"github.com/renkit/renotize/pkg/context"
	"github.com/renkit/renotize/pkg/failure"
	"github.com/renkit/renotize/pkg/sign"
)

// Pipe signs the current artifact of Kind in place and verifies the
// signature.
type Pipe struct {
	Kind sign.Kind
}

func (p Pipe) String() string { return fmt.Sprintf("signing %s", p.Kind) }

func (p Pipe) Name() string { return "sign-" + p.Kind.String() }

func (p Pipe) Output(ctx *context.Context) string { return ctx.Artifacts.Path(p.Kind) }

func (p Pipe) Run(ctx *context.Context) error {
	path := ctx.Artifacts.Path(p.Kind)
	if path == "" {
		return failure.New(failure.Precondition, "no %s found to sign — ensure the previous stages completed successfully", p.Kind)
	}
	a := sign.Artifact{Path: path, Kind: p.Kind}

	ctx.Logger.Infof("Signing %s as %s", a.Name(), ctx.Identity)
	output, err := ctx.Signer().Sign(ctx.StdCtx, a, ctx.Identity)
	ctx.Logger.Debug(output)
	if err != nil {
		return err
	}

	ctx.Logger.Infof("Signed and verified: %s", path)
	return nil
}

// Restore picks up the artifact a previous run signed.
func (p Pipe) Restore(ctx *context.Context, rec *checkpoint.Stage) error {
	if _, err := os.Stat(rec.Output); err != nil {
		return err
	}
	ctx.Artifacts.SetPath(p.Kind, rec.Output)
	return nil
}

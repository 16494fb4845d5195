package unpack

import (
	"fmt"

	"github.com/renkit/renotize/pkg/bundle"
	"github.com/renkit/renotize/pkg/checkpoint"
	"github.com/renkit/renotize/pkg/context"
	"github.com/renkit/renotize/pkg/credential"
	"github.com/renkit/renotize/pkg/failure"
)

// Pipe extracts the application bundle from the input zip.
type Pipe struct{}

func (Pipe) String() string { return "unpacking application" }

func (Pipe) Name() string { return "unpack-app" }

func (Pipe) Output(ctx *context.Context) string { return ctx.Artifacts.AppPath }

func (Pipe) Run(ctx *context.Context) error {
	zipPath, err := credential.ExpandPath(ctx.Inputs.ZipPath)
	if err != nil {
		return failure.Wrap(failure.Input, err)
	}
	outputDir := ctx.Inputs.OutputDir
	if outputDir == "" {
		outputDir = DefaultOutputDir
	}

	ctx.Logger.Infof("Extracting %s into %s", zipPath, outputDir)
	b, err := bundle.Unpack(ctx.StdCtx, zipPath, outputDir, ctx.Inputs.BundleID)
	if err != nil {
		return err
	}

	ctx.Artifacts.Bundle = b
	ctx.Artifacts.AppPath = b.Path
	ctx.Logger.Infof("Unpacked %s", b)
	return nil
}

// Restore reopens the app a previous run extracted.
func (Pipe) Restore(ctx *context.Context, rec *checkpoint.Stage) error {
	b, err := bundle.Open(rec.Output)
	if err != nil {
		return err
	}
	if b.ID != ctx.Inputs.BundleID {
		return fmt.Errorf("%s has bundle identifier %q, expected %q", rec.Output, b.ID, ctx.Inputs.BundleID)
	}
	ctx.Artifacts.Bundle = b
	ctx.Artifacts.AppPath = b.Path
	return nil
}

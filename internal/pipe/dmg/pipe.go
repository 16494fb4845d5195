package dmg

import (
	"os"
	"path/filepath"

	"github.com/renkit/renotize/pkg/archive"
	"github.com/renkit/renotize/pkg/bundle"
	"github.com/renkit/renotize/pkg/checkpoint"
	"github.com/renkit/renotize/pkg/context"
	"github.com/renkit/renotize/pkg/failure"
)

// Pipe packages the stapled app into a disk image.
type Pipe struct{}

func (Pipe) String() string { return "packaging disk image" }

func (Pipe) Name() string { return "pack-dmg" }

func (Pipe) Output(ctx *context.Context) string { return ctx.Artifacts.DMGPath }

func (Pipe) Run(ctx *context.Context) error {
	app := ctx.Artifacts.AppPath
	if app == "" {
		return failure.New(failure.Precondition, "no .app found to package — ensure the previous stages completed successfully")
	}

	volume := ctx.Inputs.VolumeName
	if volume == "" {
		volume = ctx.Config.DMG.VolumeName
	}
	if volume == "" {
		b := ctx.Artifacts.Bundle
		if b == nil {
			var err error
			if b, err = bundle.Read(app); err != nil {
				return failure.Wrap(failure.Packaging, err)
			}
		}
		volume = b.VolumeName()
	}

	out := ctx.Inputs.DMGPath
	if out == "" {
		dir := ctx.Inputs.OutputDir
		if dir == "" {
			dir = filepath.Dir(app)
		}
		out = filepath.Join(dir, archive.DMGName(volume))
	}
	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return failure.Wrapf(failure.Packaging, err, "failed to create output directory")
		}
	}

	ctx.Logger.Infof("Creating DMG %s (volume %q)", out, volume)
	output, err := ctx.Packager().Pack(ctx.StdCtx, app, out, volume, ctx.Inputs.Overwrite || ctx.Config.DMG.Overwrite)
	ctx.Logger.Debug(output)
	if err != nil {
		return err
	}

	ctx.Artifacts.DMGPath = out
	ctx.Logger.Infof("DMG created: %s", out)
	return nil
}

// Restore picks up the disk image a previous run created.
func (Pipe) Restore(ctx *context.Context, rec *checkpoint.Stage) error {
	info, err := os.Stat(rec.Output)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return failure.New(failure.Packaging, "%s is not a regular file", rec.Output)
	}
	ctx.Artifacts.DMGPath = rec.Output
	return nil
}

package unpack

import (
	"github.com/renkit/renotize/pkg/context"
	"github.com/renkit/renotize/pkg/validate"
)

// DefaultOutputDir receives the unpacked app and the disk image.
const DefaultOutputDir = "dist"

// CheckPipe validates the unpack inputs
type CheckPipe struct{}

func (CheckPipe) String() string { return "validating input archive" }

func (CheckPipe) Run(ctx *context.Context) error {
	in := &ctx.Inputs

	if err := validate.RequiredFile(in.ZipPath, "input zip"); err != nil {
		return err
	}
	if err := validate.BundleID(in.BundleID, "bundle ID"); err != nil {
		return err
	}
	if in.OutputDir == "" {
		in.OutputDir = DefaultOutputDir
	}

	ctx.Logger.Debugf("Input %s validated for %s", in.ZipPath, in.BundleID)
	return nil
}

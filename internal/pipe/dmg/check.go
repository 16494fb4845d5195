package dmg

import (
	"github.com/renkit/renotize/pkg/command"
	"github.com/renkit/renotize/pkg/context"
	"github.com/renkit/renotize/pkg/failure"
)

// CheckPipe validates that disk images can be built.
type CheckPipe struct{}

func (CheckPipe) String() string { return "validating disk image configuration" }

func (CheckPipe) Run(ctx *context.Context) error {
	if err := command.Require(ctx.Runner, ctx.Config.Tools.Hdiutil, "this tool is required for DMG packaging on macOS"); err != nil {
		return failure.Wrap(failure.Precondition, err)
	}

	ctx.Logger.Debug("Disk image configuration validated successfully")
	return nil
}

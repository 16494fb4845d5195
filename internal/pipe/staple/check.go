package staple

import (
	"github.com/renkit/renotize/pkg/command"
	"github.com/renkit/renotize/pkg/config"
	"github.com/renkit/renotize/pkg/context"
	"github.com/renkit/renotize/pkg/failure"
	"github.com/renkit/renotize/pkg/validate"
)

// skipError signals an intentional skip. It satisfies the pipe.IsSkip interface
// without importing pkg/pipe, which imports this package.
type skipError string

func (e skipError) Error() string { return string(e) }
func (e skipError) IsSkip() bool  { return true }

const xcodeHint = "install Xcode Command Line Tools with: xcode-select --install"

// CheckPipe validates the stapling configuration.
type CheckPipe struct{}

func (CheckPipe) String() string { return "validating stapling configuration" }

func (CheckPipe) Run(ctx *context.Context) error {
	if reason := skipReason(ctx); reason != "" {
		return skipError(reason)
	}
	cfg := ctx.Config.Staple

	delay, err := config.Duration(cfg.Delay, "staple.delay", 0)
	if err != nil {
		return err
	}
	if err := validate.PositiveDuration(delay, "staple.delay"); err != nil {
		return err
	}
	if err := validate.NonNegative(config.IntValue(cfg.Retries, 0), "staple.retries"); err != nil {
		return err
	}
	if err := command.Require(ctx.Runner, ctx.Config.Tools.Xcrun, xcodeHint); err != nil {
		return failure.Wrap(failure.Precondition, err)
	}

	ctx.Logger.Debug("Stapling configuration validated successfully")
	return nil
}

func skipReason(ctx *context.Context) string {
	switch {
	case ctx.Inputs.NoStaple:
		return "stapling skipped via --no-staple"
	case ctx.Inputs.NoWait:
		return "stapling skipped: not waiting for a verdict"
	default:
		return ""
	}
}

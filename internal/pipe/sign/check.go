package sign

import (
	"github.com/renkit/renotize/pkg/command"
	"github.com/renkit/renotize/pkg/context"
	"github.com/renkit/renotize/pkg/credential"
	"github.com/renkit/renotize/pkg/env"
	"github.com/renkit/renotize/pkg/failure"
	"github.com/renkit/renotize/pkg/validate"
)

const installHint = "install it with: cargo install apple-codesign"

// CheckPipe loads the signing identity and checks it can sign.
type CheckPipe struct{}

func (CheckPipe) String() string { return "validating signing identity" }

func (CheckPipe) Run(ctx *context.Context) error {
	cfg := ctx.Config.Sign

	if ctx.Identity == nil {
		if err := env.CheckResolved(cfg.KeyPassword, "sign.key_password"); err != nil {
			return err
		}
		if err := env.CheckResolved(cfg.P12Password, "sign.p12_password"); err != nil {
			return err
		}

		var id *credential.SigningIdentity
		var err error
		if cfg.P12File != "" {
			id, err = credential.LoadPKCS12Identity(cfg.P12File, cfg.P12Password)
		} else {
			if err := validate.RequiredString(cfg.KeyFile, "sign.key_file (-k)"); err != nil {
				return err
			}
			if err := validate.RequiredString(cfg.CertFile, "sign.cert_file (-c)"); err != nil {
				return err
			}
			id, err = credential.LoadSigningIdentity(cfg.KeyFile, cfg.CertFile, cfg.KeyPassword)
		}
		if err != nil {
			return err
		}
		ctx.Identity = id
	}

	if err := ctx.Identity.Check(ctx.Now()); err != nil {
		return err
	}

	if cfg.Entitlements != "" {
		if err := validate.RequiredFile(cfg.Entitlements, "sign.entitlements"); err != nil {
			return err
		}
	}

	if err := command.Require(ctx.Runner, ctx.Config.Tools.Rcodesign, installHint); err != nil {
		return failure.Wrap(failure.Precondition, err)
	}

	ctx.Logger.Debugf("Signing identity: %s", ctx.Identity)
	return nil
}

package notarize

import (
	"path/filepath"
	"strings"

	"github.com/renkit/renotize/pkg/config"
	"github.com/renkit/renotize/pkg/context"
	"github.com/renkit/renotize/pkg/credential"
	"github.com/renkit/renotize/pkg/env"
	"github.com/renkit/renotize/pkg/validate"
)

// CheckPipe loads the App Store Connect API key and checks the polling
// limits.
type CheckPipe struct{}

func (CheckPipe) String() string { return "validating notarization configuration" }

func (CheckPipe) Run(ctx *context.Context) error {
	cfg := ctx.Config.Notarize

	if ctx.APIKey == nil && ctx.Notary == nil {
		if err := validate.RequiredString(cfg.APIKeyFile, "notarize.api_key_file (-k)"); err != nil {
			return err
		}
		key, err := loadKey(cfg)
		if err != nil {
			return err
		}
		ctx.APIKey = key
	}

	interval, err := config.Duration(cfg.PollInterval, "notarize.poll_interval", 0)
	if err != nil {
		return err
	}
	if err := validate.PositiveDuration(interval, "notarize.poll_interval"); err != nil {
		return err
	}
	maxWait, err := config.Duration(cfg.MaxWait, "notarize.max_wait", 0)
	if err != nil {
		return err
	}
	if err := validate.PositiveDuration(maxWait, "notarize.max_wait"); err != nil {
		return err
	}
	retryInterval, err := config.Duration(cfg.RetryInterval, "notarize.retry_interval", 0)
	if err != nil {
		return err
	}
	if err := validate.PositiveDuration(retryInterval, "notarize.retry_interval"); err != nil {
		return err
	}
	if err := validate.NonNegative(config.IntValue(cfg.QueryRetries, 0), "notarize.query_retries"); err != nil {
		return err
	}

	ctx.Logger.Debug("Notarization configuration validated successfully")
	return nil
}

// loadKey reads a JSON key file, or a .p8 file plus issuer and key IDs.
func loadKey(cfg config.NotarizeConfig) (*credential.APIKey, error) {
	if strings.EqualFold(filepath.Ext(cfg.APIKeyFile), ".p8") {
		if err := env.CheckResolved(cfg.IssuerID, "notarize.issuer_id"); err != nil {
			return nil, err
		}
		if err := env.CheckResolved(cfg.KeyID, "notarize.key_id"); err != nil {
			return nil, err
		}
		if err := validate.RequiredString(cfg.IssuerID, "notarize.issuer_id"); err != nil {
			return nil, err
		}
		if err := validate.RequiredString(cfg.KeyID, "notarize.key_id"); err != nil {
			return nil, err
		}
		return credential.LoadAPIKeyP8(cfg.APIKeyFile, cfg.IssuerID, cfg.KeyID)
	}
	return credential.LoadAPIKey(cfg.APIKeyFile)
}

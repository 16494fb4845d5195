// Package context carries the state shared by every pipe of a run.
package context

import (
	"context"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/renkit/renotize/pkg/archive"
	"github.com/renkit/renotize/pkg/bundle"
	"github.com/renkit/renotize/pkg/checkpoint"
	"github.com/renkit/renotize/pkg/command"
	"github.com/renkit/renotize/pkg/config"
	"github.com/renkit/renotize/pkg/credential"
	"github.com/renkit/renotize/pkg/failure"
	"github.com/renkit/renotize/pkg/notarize"
	"github.com/renkit/renotize/pkg/notary"
	"github.com/renkit/renotize/pkg/sign"
	"github.com/sirupsen/logrus"
)

// Inputs are the user-supplied parameters of a run.
type Inputs struct {
	ZipPath    string
	BundleID   string
	OutputDir  string
	DMGPath    string
	VolumeName string
	Overwrite  bool
	// NoWait submits without polling for a verdict.
	NoWait bool
	// NoStaple skips stapling after acceptance.
	NoStaple bool
}

// Artifacts tracks what the stages have produced so far.
type Artifacts struct {
	AppPath string
	DMGPath string
	Bundle  *bundle.Bundle
}

// Path returns the current artifact of the given kind, or "".
func (a Artifacts) Path(kind sign.Kind) string {
	if kind == sign.DiskImage {
		return a.DMGPath
	}
	return a.AppPath
}

// SetPath records the current artifact of the given kind.
func (a *Artifacts) SetPath(kind sign.Kind, path string) {
	if kind == sign.DiskImage {
		a.DMGPath = path
		return
	}
	a.AppPath = path
}

// Context provides shared state for all pipes
type Context struct {
	StdCtx context.Context // Standard context for cancellation support
	Config *config.Config
	Logger *logrus.Logger

	Clock  clock.Clock
	Runner command.Runner
	// Notary is the notary service; when nil it is built from APIKey.
	Notary notarize.Service

	Identity *credential.SigningIdentity
	APIKey   *credential.APIKey

	Inputs    Inputs
	Artifacts Artifacts
	// Verdicts holds the notarization status per artifact kind.
	Verdicts map[sign.Kind]notarize.Status

	State      *checkpoint.State
	Checkpoint checkpoint.Store
}

// NewContext creates a new context with the given standard context, config, and logger.
// If stdCtx is nil, context.Background() is used; a nil config means defaults.
func NewContext(stdCtx context.Context, cfg *config.Config, logger *logrus.Logger) *Context {
	if stdCtx == nil {
		stdCtx = context.Background()
	}
	if cfg == nil {
		cfg = config.Default()
	}
	return &Context{
		StdCtx:   stdCtx,
		Config:   cfg,
		Logger:   logger,
		Clock:    clock.NewClock(),
		Runner:   command.Exec{},
		Verdicts: map[sign.Kind]notarize.Status{},
	}
}

// Done returns the done channel from the standard context for cancellation support
func (c *Context) Done() <-chan struct{} {
	return c.StdCtx.Done()
}

// Err returns the error from the standard context
func (c *Context) Err() error {
	return c.StdCtx.Err()
}

// Record returns the checkpoint record for a stage. Without a checkpoint
// the record is detached and never persisted.
func (c *Context) Record(stage string) *checkpoint.Stage {
	if c.State == nil {
		c.State = &checkpoint.State{Version: checkpoint.Version}
	}
	return c.State.Stage(stage)
}

// Save persists the checkpoint, if the run has one.
func (c *Context) Save() error {
	return c.Checkpoint.Save(c.State, c.Clock.Now())
}

// Signer returns an rcodesign signer configured for this run.
func (c *Context) Signer() sign.Signer {
	entitlements := c.Config.Sign.Entitlements
	if entitlements != "" {
		if expanded, err := credential.ExpandPath(entitlements); err == nil {
			entitlements = expanded
		}
	}
	return sign.Signer{Runner: c.Runner, Clock: c.Clock, Tool: c.Config.Tools.Rcodesign, Entitlements: entitlements}
}

// Packager returns the disk image packager.
func (c *Context) Packager() archive.DMGPackager {
	return archive.DMGPackager{Runner: c.Runner, Hdiutil: c.Config.Tools.Hdiutil}
}

// NotaryService returns the notary service, connecting with APIKey on
// first use.
func (c *Context) NotaryService() (notarize.Service, error) {
	if c.Notary != nil {
		return c.Notary, nil
	}
	if c.APIKey == nil {
		return nil, failure.New(failure.Input, "no App Store Connect API key loaded")
	}
	var opts []notary.Option
	if c.Config.Notarize.BaseURL != "" {
		opts = append(opts, notary.WithBaseURL(c.Config.Notarize.BaseURL))
	}
	client, err := notary.NewClient(c.APIKey, opts...)
	if err != nil {
		return nil, failure.Wrap(failure.Input, err)
	}
	c.Notary = client
	return client, nil
}

// Submitter returns a submitter for svc.
func (c *Context) Submitter(svc notarize.Service) *notarize.Submitter {
	return &notarize.Submitter{
		Service: svc,
		Runner:  c.Runner,
		Ditto:   c.Config.Tools.Ditto,
		Clock:   c.Clock,
	}
}

// Poller returns a poller for svc using the configured timing.
func (c *Context) Poller(svc notarize.Service) (*notarize.Poller, error) {
	cfg := c.Config.Notarize
	interval, err := config.Duration(cfg.PollInterval, "notarize.poll_interval", notarize.DefaultPollInterval)
	if err != nil {
		return nil, failure.Wrap(failure.Input, err)
	}
	maxWait, err := config.Duration(cfg.MaxWait, "notarize.max_wait", notarize.DefaultMaxWait)
	if err != nil {
		return nil, failure.Wrap(failure.Input, err)
	}
	retryInterval, err := config.Duration(cfg.RetryInterval, "notarize.retry_interval", notarize.DefaultRetryInterval)
	if err != nil {
		return nil, failure.Wrap(failure.Input, err)
	}
	return &notarize.Poller{
		Service:       svc,
		Clock:         c.Clock,
		Logger:        c.Logger,
		Interval:      interval,
		MaxWait:       maxWait,
		QueryRetries:  config.IntValue(cfg.QueryRetries, notarize.DefaultQueryRetries),
		RetryInterval: retryInterval,
	}, nil
}

// Stapler returns a stapler using the configured retry policy.
func (c *Context) Stapler() (*notarize.Stapler, error) {
	delay, err := config.Duration(c.Config.Staple.Delay, "staple.delay", notarize.DefaultStapleDelay)
	if err != nil {
		return nil, failure.Wrap(failure.Input, err)
	}
	return &notarize.Stapler{
		Runner:  c.Runner,
		Xcrun:   c.Config.Tools.Xcrun,
		Retries: config.IntValue(c.Config.Staple.Retries, notarize.DefaultStapleRetries),
		Delay:   delay,
		Clock:   c.Clock,
		Logger:  c.Logger,
	}, nil
}

// Now returns the current time on the run's clock.
func (c *Context) Now() time.Time {
	return c.Clock.Now()
}

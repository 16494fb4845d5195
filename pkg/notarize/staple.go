package notarize

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/renkit/renotize/pkg/command"
	"github.com/renkit/renotize/pkg/failure"
	"github.com/renkit/renotize/pkg/sign"
	"github.com/sirupsen/logrus"
)

// Stapling defaults.
const (
	DefaultStapleRetries = 3
	DefaultStapleDelay   = 10 * time.Second
)

const xcodeHint = "install Xcode Command Line Tools with: xcode-select --install"

// errTicketMissing marks a staple attempt that may succeed later, once the
// ticket has propagated to Apple's CDN.
var errTicketMissing = errors.New("notarization ticket not found")

// Stapler attaches notarization tickets with xcrun stapler.
type Stapler struct {
	Runner  command.Runner
	Xcrun   string
	Retries int
	Delay   time.Duration
	Clock   clock.Clock
	Logger  logrus.FieldLogger
}

func (s *Stapler) runner() command.Runner {
	if s.Runner == nil {
		return command.Exec{}
	}
	return s.Runner
}

func (s *Stapler) xcrun() string {
	if s.Xcrun == "" {
		return "xcrun"
	}
	return s.Xcrun
}

func (s *Stapler) logger() logrus.FieldLogger {
	if s.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		return l
	}
	return s.Logger
}

// IsTicketMissing reports whether stapler output says the ticket is not
// (yet) available.
func IsTicketMissing(output string) bool {
	for _, marker := range []string{"Could not find ticket", "Record not found", "Error 65", "Error 68", "error 65", "error 68"} {
		if strings.Contains(output, marker) {
			return true
		}
	}
	return false
}

// Staple attaches the ticket for an accepted submission to a, then
// validates the result. A missing ticket is retried up to Retries times
// with Delay between attempts. Returns combined tool output.
func (s *Stapler) Staple(ctx context.Context, a sign.Artifact, status Status) (string, error) {
	if status.State != Accepted {
		return "", failure.New(failure.Precondition, "cannot staple %s: notarization status is %s, not Accepted", a.Name(), status.State)
	}
	if err := a.Check(); err != nil {
		return "", failure.Wrap(failure.Staple, errors.Unwrap(err))
	}
	if err := command.Require(s.runner(), s.xcrun(), xcodeHint); err != nil {
		return "", failure.Wrap(failure.Staple, err)
	}

	var output strings.Builder
	attempt := 0
	operation := func() error {
		attempt++
		out, err := s.runner().Run(ctx, s.xcrun(), "stapler", "staple", a.Path)
		output.WriteString(out)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if IsTicketMissing(out) {
			return fmt.Errorf("%w (attempt %d)", errTicketMissing, attempt)
		}
		return backoff.Permanent(fmt.Errorf("stapler staple failed: %s: %w", strings.TrimSpace(out), err))
	}

	retries := s.Retries
	if retries < 0 {
		retries = 0
	}
	delay := s.Delay
	if delay <= 0 {
		delay = DefaultStapleDelay
	}
	clk := s.Clock
	if clk == nil {
		clk = clock.NewClock()
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(retries)), ctx)
	notify := func(err error, next time.Duration) {
		s.logger().Warnf("Ticket not available yet, retrying in %s", next)
	}

	if err := backoff.RetryNotifyWithTimer(operation, b, notify, &clockTimer{clock: clk}); err != nil {
		if ctx.Err() != nil {
			return output.String(), failure.Cancel(ctx.Err())
		}
		if errors.Is(err, errTicketMissing) {
			return output.String(), failure.New(failure.Staple,
				"stapling failed — the notarization ticket was not found after %d attempts", attempt)
		}
		return output.String(), failure.Wrap(failure.Staple, err)
	}

	out, err := s.runner().Run(ctx, s.xcrun(), "stapler", "validate", a.Path)
	output.WriteString(out)
	if err != nil {
		if ctx.Err() != nil {
			return output.String(), failure.Cancel(ctx.Err())
		}
		return output.String(), failure.New(failure.Staple, "stapled ticket failed validation for %s: %s: %v", a.Name(), strings.TrimSpace(out), err)
	}
	return output.String(), nil
}

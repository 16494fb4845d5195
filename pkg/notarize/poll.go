package notarize

import (
	"context"
	"fmt"
	"io"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/renkit/renotize/pkg/failure"
	"github.com/renkit/renotize/pkg/notary"
	"github.com/sirupsen/logrus"
)

// Polling defaults.
const (
	DefaultPollInterval  = 30 * time.Second
	DefaultMaxWait       = time.Hour
	DefaultQueryRetries  = 5
	DefaultRetryInterval = 2 * time.Second
)

// deadlineSlack places the last query just past the MaxWait deadline.
const deadlineSlack = time.Millisecond

// Poller waits for the service to reach a verdict on a submission. It
// suspends on clock timers between queries and never busy-loops.
type Poller struct {
	Service Service
	Clock   clock.Clock
	Logger  logrus.FieldLogger

	// Interval is the wait between status queries.
	Interval time.Duration
	// MaxWait bounds the time since submission before giving up.
	MaxWait time.Duration
	// QueryRetries is how often one query is retried on transient errors.
	QueryRetries int
	// RetryInterval is the first wait between query retries; it doubles
	// with every further retry.
	RetryInterval time.Duration
}

func (p *Poller) clock() clock.Clock {
	if p.Clock == nil {
		return clock.NewClock()
	}
	return p.Clock
}

func (p *Poller) logger() logrus.FieldLogger {
	if p.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		return l
	}
	return p.Logger
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// AwaitVerdict queries the submission until it is accepted or rejected.
// The first query is issued immediately. since is when the submission was
// made; a zero value means now. Once more than MaxWait has elapsed since
// then, a TimeoutError naming the submission is returned. The wait before
// the last query is shortened so the timeout is never later than needed.
func (p *Poller) AwaitVerdict(ctx context.Context, id string, since time.Time) (Status, error) {
	clk := p.clock()
	interval := orDefault(p.Interval, DefaultPollInterval)
	maxWait := orDefault(p.MaxWait, DefaultMaxWait)
	if since.IsZero() {
		since = clk.Now()
	}
	log := p.logger().WithField("submission", id)

	for {
		if err := ctx.Err(); err != nil {
			return Status{SubmissionID: id}, failure.WithSubmission(failure.Cancel(err), id)
		}

		status, err := p.Query(ctx, id)
		if err != nil {
			return Status{SubmissionID: id}, err
		}
		if status.Terminal() {
			return status, nil
		}

		elapsed := clk.Since(since)
		if elapsed > maxWait {
			return status, failure.WithSubmission(
				failure.New(failure.Timeout, "no verdict after %s", elapsed.Round(time.Second)), id)
		}
		wait := interval
		if remaining := maxWait - elapsed + deadlineSlack; remaining < wait {
			wait = remaining
		}
		log.Infof("Still in progress after %s, checking again in %s", elapsed.Round(time.Second), wait.Round(time.Second))

		timer := clk.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return status, failure.WithSubmission(failure.Cancel(ctx.Err()), id)
		case <-timer.C():
		}
	}
}

// Query fetches the current status once, retrying transient failures with
// exponential backoff. Rejected statuses carry the developer log URL.
func (p *Poller) Query(ctx context.Context, id string) (Status, error) {
	var sub *notary.Submission
	operation := func() error {
		s, err := p.Service.Status(ctx, id)
		if err != nil {
			if ctx.Err() != nil || !notary.IsTransient(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		sub = s
		return nil
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = orDefault(p.RetryInterval, DefaultRetryInterval)
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0
	retries := p.QueryRetries
	if retries < 0 {
		retries = 0
	}
	b := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(retries)), ctx)

	notify := func(err error, next time.Duration) {
		p.logger().WithField("submission", id).Warnf("Status query failed, retrying in %s: %v", next, err)
	}
	if err := backoff.RetryNotifyWithTimer(operation, b, notify, &clockTimer{clock: p.clock()}); err != nil {
		if ctx.Err() != nil {
			return Status{SubmissionID: id}, failure.WithSubmission(failure.Cancel(ctx.Err()), id)
		}
		return Status{SubmissionID: id}, failure.WithSubmission(
			failure.Wrapf(failure.Poll, err, "status query failed"), id)
	}

	status := Status{State: StateFromService(sub.Status), SubmissionID: id}
	if status.State == Rejected {
		status.Reason = sub.Status
		logURL, err := p.Service.LogURL(ctx, id)
		if err != nil {
			p.logger().WithField("submission", id).Warnf("Failed to fetch developer log: %v", err)
		}
		status.LogURL = logURL
	}
	return status, nil
}

// RejectionError converts a rejected status into a Rejected failure.
func RejectionError(s Status) error {
	msg := fmt.Sprintf("submission %s was rejected (%s)", s.SubmissionID, s.Reason)
	if s.LogURL != "" {
		msg += "; developer log: " + s.LogURL
	}
	return &failure.Error{Kind: failure.Rejected, SubmissionID: s.SubmissionID, Err: fmt.Errorf("%s", msg)}
}

package notarize

import (
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/cenkalti/backoff/v4"
)

// clockTimer adapts clock.Clock to backoff.Timer so retries wait on the
// injected clock.
type clockTimer struct {
	clock clock.Clock
	timer clock.Timer
}

var _ backoff.Timer = (*clockTimer)(nil)

func (t *clockTimer) Start(d time.Duration) {
	if t.timer == nil {
		t.timer = t.clock.NewTimer(d)
		return
	}
	t.timer.Reset(d)
}

func (t *clockTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *clockTimer) C() <-chan time.Time {
	return t.timer.C()
}

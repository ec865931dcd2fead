package worker

import (
	"context"
	"time"

	"github.com/seekerror/stdlib/pkg/util/iox"
)

// sleeper is the interruptible sleep primitive a worker blocks on between
// iterations: a stop or stop-soon signal collapses any in-progress Sleep to
// return immediately, signalled through an iox.Pulse.
type sleeper struct {
	pulse *iox.Pulse
}

func newSleeper() *sleeper {
	return &sleeper{pulse: iox.NewPulse()}
}

// Sleep blocks for d, or until Wake is called, or until ctx is done,
// whichever comes first.
func (s *sleeper) Sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-s.pulse.Chan():
	case <-ctx.Done():
	}
}

// Wake collapses any sleep in progress (or about to start) to zero.
func (s *sleeper) Wake() {
	s.pulse.Emit()
}

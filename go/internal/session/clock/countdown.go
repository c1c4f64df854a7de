package clock

import (
	"context"
	"time"

	"github.com/mcdev12/hotseat/go/internal/session"
)

// tickInterval is the cadence at which countdowns re-derive their value.
const tickInterval = time.Second

// RunCountdown emits the remaining seconds of a phase once immediately and
// then every second until the phase expires or ctx is cancelled. The value is
// re-derived from the phase start time and estimated hub time on every tick,
// never decremented, so a suspended or delayed ticker cannot drift the
// countdown. It blocks; run it on its own goroutine and cancel ctx when the
// phase is torn down.
func (s *Synchronizer) RunCountdown(ctx context.Context, phase session.Phase, onTick func(remaining int)) {
	remaining := phase.RemainingSeconds(s.Now())
	onTick(remaining)
	if remaining == 0 {
		return
	}

	ticker := s.clock.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			remaining = phase.RemainingSeconds(s.Now())
			onTick(remaining)
			if remaining == 0 {
				return
			}
		}
	}
}

// Package clock keeps a participant's view of time aligned with the hub.
// The hub's clock is the only authoritative time source in a session; local
// wall time is only ever used as a base for the estimated offset.
package clock

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Synchronizer tracks the offset between hub time and the local clock.
// Every hub-stamped message observed updates the estimate; the last write
// wins, so the offset self-corrects as long as messages keep flowing.
type Synchronizer struct {
	clock clockwork.Clock

	mu     sync.RWMutex
	offset time.Duration
	synced bool
}

// NewSynchronizer creates a synchronizer with zero offset. Until the first
// Observe, Now returns plain local time.
func NewSynchronizer(clk clockwork.Clock) *Synchronizer {
	return &Synchronizer{clock: clk}
}

// Observe records the hub timestamp carried by a received message and
// re-derives the offset against the local clock. Zero timestamps are
// ignored.
func (s *Synchronizer) Observe(serverTime time.Time) {
	if serverTime.IsZero() {
		return
	}
	now := s.clock.Now()

	s.mu.Lock()
	s.offset = serverTime.Sub(now)
	s.synced = true
	s.mu.Unlock()
}

// Now returns the current estimate of hub time.
func (s *Synchronizer) Now() time.Time {
	s.mu.RLock()
	offset := s.offset
	s.mu.RUnlock()
	return s.clock.Now().Add(offset)
}

// Offset returns the current offset estimate (hub time minus local time).
func (s *Synchronizer) Offset() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.offset
}

// Synced reports whether at least one hub timestamp has been observed.
func (s *Synchronizer) Synced() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.synced
}

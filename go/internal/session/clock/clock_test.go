package clock

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/hotseat/go/internal/session"
)

func TestSynchronizerObserve(t *testing.T) {
	fc := clockwork.NewFakeClock()
	sync := NewSynchronizer(fc)

	if sync.Synced() {
		t.Error("synced before any observation")
	}

	local := fc.Now()
	sync.Observe(local.Add(5 * time.Second))

	if !sync.Synced() {
		t.Error("not synced after observation")
	}
	if got := sync.Offset(); got != 5*time.Second {
		t.Errorf("offset = %v, want 5s", got)
	}
	if got := sync.Now(); !got.Equal(local.Add(5 * time.Second)) {
		t.Errorf("Now = %v, want %v", got, local.Add(5*time.Second))
	}

	// The offset rides on top of the local clock.
	fc.Advance(10 * time.Second)
	if got := sync.Now(); !got.Equal(local.Add(15 * time.Second)) {
		t.Errorf("Now after advance = %v, want %v", got, local.Add(15*time.Second))
	}
}

func TestSynchronizerLastObservationWins(t *testing.T) {
	fc := clockwork.NewFakeClock()
	sync := NewSynchronizer(fc)

	local := fc.Now()
	sync.Observe(local.Add(5 * time.Second))
	sync.Observe(local.Add(-2 * time.Second))

	if got := sync.Offset(); got != -2*time.Second {
		t.Errorf("offset = %v, want -2s", got)
	}
}

func TestSynchronizerIgnoresZeroTimestamp(t *testing.T) {
	fc := clockwork.NewFakeClock()
	sync := NewSynchronizer(fc)

	sync.Observe(fc.Now().Add(3 * time.Second))
	sync.Observe(time.Time{})

	if got := sync.Offset(); got != 3*time.Second {
		t.Errorf("offset = %v, want 3s after zero timestamp ignored", got)
	}
}

func startCountdown(t *testing.T, sync *Synchronizer, phase session.Phase) (<-chan int, context.CancelFunc, <-chan struct{}) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	ticks := make(chan int)
	done := make(chan struct{})
	go func() {
		defer close(done)
		sync.RunCountdown(ctx, phase, func(remaining int) {
			ticks <- remaining
		})
	}()
	return ticks, cancel, done
}

func TestRunCountdownCountsToZero(t *testing.T) {
	fc := clockwork.NewFakeClock()
	sync := NewSynchronizer(fc)
	phase := session.Phase{StartTime: fc.Now(), Duration: 3 * time.Second}

	ticks, cancel, done := startCountdown(t, sync, phase)
	defer cancel()

	if got := <-ticks; got != 3 {
		t.Fatalf("initial tick = %d, want 3", got)
	}

	want := []int{2, 1, 0}
	for _, w := range want {
		if err := fc.BlockUntilContext(context.Background(), 1); err != nil {
			t.Fatalf("BlockUntilContext: %v", err)
		}
		fc.Advance(time.Second)
		if got := <-ticks; got != w {
			t.Fatalf("tick = %d, want %d", got, w)
		}
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("countdown did not stop after reaching zero")
	}
}

func TestRunCountdownRederivesAfterStall(t *testing.T) {
	fc := clockwork.NewFakeClock()
	sync := NewSynchronizer(fc)
	phase := session.Phase{StartTime: fc.Now(), Duration: 3 * time.Second}

	ticks, cancel, done := startCountdown(t, sync, phase)
	defer cancel()

	if got := <-ticks; got != 3 {
		t.Fatalf("initial tick = %d, want 3", got)
	}

	// Jump past the deadline in one step, as if the process was suspended.
	// The next tick must re-derive straight to zero, never below it.
	if err := fc.BlockUntilContext(context.Background(), 1); err != nil {
		t.Fatalf("BlockUntilContext: %v", err)
	}
	fc.Advance(3 * time.Second)

	if got := <-ticks; got != 0 {
		t.Fatalf("tick after stall = %d, want 0", got)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("countdown did not stop after expiring")
	}
}

func TestRunCountdownExpiredPhase(t *testing.T) {
	fc := clockwork.NewFakeClock()
	sync := NewSynchronizer(fc)
	phase := session.Phase{StartTime: fc.Now().Add(-time.Minute), Duration: 3 * time.Second}

	ticks, cancel, done := startCountdown(t, sync, phase)
	defer cancel()

	if got := <-ticks; got != 0 {
		t.Fatalf("tick = %d, want 0 for an already-expired phase", got)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("countdown did not return for an expired phase")
	}
}

func TestRunCountdownCancel(t *testing.T) {
	fc := clockwork.NewFakeClock()
	sync := NewSynchronizer(fc)
	phase := session.Phase{StartTime: fc.Now(), Duration: time.Hour}

	ticks, cancel, done := startCountdown(t, sync, phase)

	if got := <-ticks; got != 3600 {
		t.Fatalf("initial tick = %d, want 3600", got)
	}

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("countdown did not stop on cancel")
	}
}

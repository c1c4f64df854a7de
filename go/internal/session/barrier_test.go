package session

import "testing"

func TestBarrierSatisfiedInAnyOrderWithDuplicates(t *testing.T) {
	roster := NewRoster("alice", "bob", "carol")

	orders := [][]string{
		{"alice", "bob", "carol"},
		{"carol", "alice", "bob"},
		{"bob", "bob", "carol", "alice", "carol"},
	}

	for _, order := range orders {
		barrier := NewBarrier()
		marked := map[string]bool{}
		for _, id := range order {
			barrier.Mark(BarrierResults, 0, id)
			marked[id] = true

			want := len(marked) == roster.Size()
			if got := barrier.Satisfied(BarrierResults, 0, roster); got != want {
				t.Fatalf("order %v: after marking %q satisfied = %v, want %v", order, id, got, want)
			}
		}
	}
}

func TestBarrierMarkReportsFirstSignalOnly(t *testing.T) {
	barrier := NewBarrier()

	if !barrier.Mark(BarrierContinue, 2, "alice") {
		t.Error("first mark reported as replay")
	}
	if barrier.Mark(BarrierContinue, 2, "alice") {
		t.Error("replayed mark reported as new")
	}
	if got := barrier.ReadyCount(BarrierContinue, 2); got != 1 {
		t.Errorf("ready count = %d, want 1", got)
	}
}

func TestBarrierNonMemberNeverSatisfies(t *testing.T) {
	roster := NewRoster("alice", "bob")
	barrier := NewBarrier()

	barrier.Mark(BarrierResults, 0, "mallory")
	barrier.Mark(BarrierResults, 0, "alice")

	if barrier.Satisfied(BarrierResults, 0, roster) {
		t.Error("barrier satisfied with a roster member missing")
	}

	barrier.Mark(BarrierResults, 0, "bob")
	if !barrier.Satisfied(BarrierResults, 0, roster) {
		t.Error("barrier not satisfied once every member marked")
	}
}

func TestBarrierKindsAndPhasesAreIndependent(t *testing.T) {
	roster := NewRoster("alice")
	barrier := NewBarrier()

	barrier.Mark(BarrierResults, 0, "alice")

	if barrier.Satisfied(BarrierContinue, 0, roster) {
		t.Error("continue barrier satisfied by a results mark")
	}
	if barrier.Satisfied(BarrierResults, 1, roster) {
		t.Error("phase 1 barrier satisfied by a phase 0 mark")
	}
	if !barrier.Satisfied(BarrierResults, 0, roster) {
		t.Error("results barrier for phase 0 not satisfied")
	}
}

func TestBarrierLevelTriggeredOnRosterShrink(t *testing.T) {
	roster := NewRoster("alice", "bob")
	barrier := NewBarrier()

	barrier.Mark(BarrierContinue, 3, "alice")
	if barrier.Satisfied(BarrierContinue, 3, roster) {
		t.Fatal("barrier satisfied while bob has not marked")
	}

	// Satisfaction is a predicate over current state, so removing the
	// holdout flips it without any further signal.
	roster.Remove("bob")
	if !barrier.Satisfied(BarrierContinue, 3, roster) {
		t.Error("barrier not satisfied after the holdout left the roster")
	}
}

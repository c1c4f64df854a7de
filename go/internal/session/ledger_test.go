package session

import (
	"encoding/json"
	"testing"
)

func TestLedgerSubmitIsIdempotent(t *testing.T) {
	ledger := NewLedger()

	first := ledger.Submit("alice", 0, json.RawMessage(`"red"`))
	second := ledger.Submit("alice", 0, json.RawMessage(`"blue"`))

	if !first {
		t.Error("first submit rejected")
	}
	if second {
		t.Error("duplicate submit accepted")
	}
	if got := ledger.Count(0); got != 1 {
		t.Errorf("count = %d, want 1 after duplicate", got)
	}

	// The first payload wins; the replay must not overwrite it.
	answers := ledger.Answers(0)
	if string(answers["alice"]) != `"red"` {
		t.Errorf("stored payload = %s, want %q", answers["alice"], `"red"`)
	}
}

func TestLedgerSamePairDifferentPhases(t *testing.T) {
	ledger := NewLedger()

	if !ledger.Submit("alice", 0, json.RawMessage(`"a"`)) {
		t.Error("phase 0 submit rejected")
	}
	if !ledger.Submit("alice", 1, json.RawMessage(`"b"`)) {
		t.Error("phase 1 submit rejected for same participant")
	}
	if ledger.Count(0) != 1 || ledger.Count(1) != 1 {
		t.Errorf("counts = %d, %d, want 1, 1", ledger.Count(0), ledger.Count(1))
	}
}

func TestLedgerCompleteness(t *testing.T) {
	roster := NewRoster("alice", "bob")
	ledger := NewLedger()

	if ledger.IsComplete(0, roster) {
		t.Error("empty ledger reported complete")
	}

	ledger.Submit("alice", 0, json.RawMessage(`"x"`))
	if ledger.IsComplete(0, roster) {
		t.Error("half-submitted phase reported complete")
	}

	ledger.Submit("bob", 0, json.RawMessage(`"y"`))
	if !ledger.IsComplete(0, roster) {
		t.Error("fully-submitted phase not reported complete")
	}
}

func TestLedgerCompletenessAfterRosterShrink(t *testing.T) {
	roster := NewRoster("alice", "bob", "carol")
	ledger := NewLedger()

	ledger.Submit("alice", 0, json.RawMessage(`"x"`))
	ledger.Submit("bob", 0, json.RawMessage(`"y"`))

	if ledger.IsComplete(0, roster) {
		t.Error("phase complete while carol is still enrolled and silent")
	}

	// Removing the silent participant must make completeness re-evaluate
	// against the smaller roster.
	roster.Remove("carol")
	if !ledger.IsComplete(0, roster) {
		t.Error("phase not complete after the missing participant left the roster")
	}
}

func TestLedgerNonMemberSubmissionDoesNotComplete(t *testing.T) {
	roster := NewRoster("alice", "bob")
	ledger := NewLedger()

	ledger.Submit("alice", 0, json.RawMessage(`"x"`))
	ledger.Submit("mallory", 0, json.RawMessage(`"z"`))

	if ledger.IsComplete(0, roster) {
		t.Error("non-member submission counted toward completeness")
	}
	if got := ledger.Count(0); got != 2 {
		t.Errorf("count = %d, want 2 recorded submissions", got)
	}
}

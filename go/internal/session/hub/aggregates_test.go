package hub

import (
	"encoding/json"
	"testing"
)

func TestBuildAggregatesGroupsEqualAnswers(t *testing.T) {
	answers := map[string]json.RawMessage{
		"alice": json.RawMessage(`"red"`),
		"bob":   json.RawMessage(`"red"`),
		"carol": json.RawMessage(`"blue"`),
	}

	agg := BuildAggregates(answers)

	if agg.Count != 3 {
		t.Errorf("count = %d, want 3", agg.Count)
	}
	if agg.Distribution["red"] != 2 || agg.Distribution["blue"] != 1 {
		t.Errorf("distribution = %v", agg.Distribution)
	}
	if len(agg.Answers) != 3 {
		t.Errorf("answers = %v", agg.Answers)
	}
}

func TestBuildAggregatesCanonicalizesObjects(t *testing.T) {
	// Same object, different whitespace: one distribution bucket.
	answers := map[string]json.RawMessage{
		"alice": json.RawMessage(`{"choice": 2}`),
		"bob":   json.RawMessage(`{"choice":2}`),
	}

	agg := BuildAggregates(answers)

	if agg.Distribution[`{"choice":2}`] != 2 {
		t.Errorf("distribution = %v", agg.Distribution)
	}
}

func TestBuildAggregatesUnquotesStrings(t *testing.T) {
	// A quoted string and the bare text of an equal number land in the same
	// bucket; the key is the canonical text, not the JSON encoding.
	answers := map[string]json.RawMessage{
		"alice": json.RawMessage(`2`),
		"bob":   json.RawMessage(`"2"`),
	}

	agg := BuildAggregates(answers)

	if agg.Distribution["2"] != 2 {
		t.Errorf("distribution = %v", agg.Distribution)
	}
}

func TestBuildAggregatesEmpty(t *testing.T) {
	agg := BuildAggregates(nil)

	if agg.Count != 0 || len(agg.Distribution) != 0 || len(agg.Answers) != 0 {
		t.Errorf("aggregates = %+v", agg)
	}
}

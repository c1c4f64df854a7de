package hub

import (
	"bytes"
	"encoding/json"

	"github.com/mcdev12/hotseat/go/internal/session/protocol"
)

// BuildAggregates summarizes a phase's submissions: total count, the raw
// answers by participant, and a distribution over answer values. Payloads are
// opaque, so the distribution key is the canonical text of the payload; plain
// JSON strings are unquoted so "red" and "red" group under red.
func BuildAggregates(answers map[string]json.RawMessage) protocol.ResultAggregates {
	aggregates := protocol.ResultAggregates{
		Count:        len(answers),
		Distribution: make(map[string]int),
		Answers:      make(map[string]json.RawMessage, len(answers)),
	}
	for id, raw := range answers {
		aggregates.Answers[id] = raw
		aggregates.Distribution[answerKey(raw)]++
	}
	return aggregates
}

func answerKey(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleScript = `
name: friday-trivia
auto_start: true
phases:
  - name: warmup
    kind: question
    duration_seconds: 60
  - name: round-1
    duration_seconds: 150
  - name: finale
    kind: lightning
    duration_seconds: 180
`

func TestParseScript(t *testing.T) {
	script, err := ParseScript([]byte(sampleScript))
	if err != nil {
		t.Fatalf("ParseScript: %v", err)
	}

	if script.Name != "friday-trivia" {
		t.Errorf("name = %q, want %q", script.Name, "friday-trivia")
	}
	if !script.AutoStart {
		t.Error("auto_start not parsed")
	}
	if script.Len() != 3 {
		t.Fatalf("len = %d, want 3", script.Len())
	}
	if script.LastIndex() != 2 {
		t.Errorf("last index = %d, want 2", script.LastIndex())
	}

	// Missing kind falls back to the default.
	round, ok := script.PhaseAt(1)
	if !ok {
		t.Fatal("PhaseAt(1) not found")
	}
	if round.Kind != DefaultPhaseKind {
		t.Errorf("kind = %q, want %q", round.Kind, DefaultPhaseKind)
	}
	if round.DurationSeconds != 150 {
		t.Errorf("duration = %d, want 150", round.DurationSeconds)
	}

	if _, ok := script.PhaseAt(3); ok {
		t.Error("PhaseAt(3) found a phase past the end")
	}
	if _, ok := script.PhaseAt(-1); ok {
		t.Error("PhaseAt(-1) found a phase")
	}
}

func TestParseScriptRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", `name: empty`},
		{"unnamed phase", "phases:\n  - duration_seconds: 30\n"},
		{"zero duration", "phases:\n  - name: broken\n    duration_seconds: 0\n"},
		{"negative duration", "phases:\n  - name: broken\n    duration_seconds: -5\n"},
		{"not yaml", `{{nope`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseScript([]byte(tt.yaml)); err == nil {
				t.Error("ParseScript accepted an invalid script")
			}
		})
	}
}

func TestLoadScript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.yaml")
	if err := os.WriteFile(path, []byte(sampleScript), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}

	script, err := LoadScript(path)
	if err != nil {
		t.Fatalf("LoadScript: %v", err)
	}
	if script.Len() != 3 {
		t.Errorf("len = %d, want 3", script.Len())
	}

	if _, err := LoadScript(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadScript succeeded on a missing file")
	}
}

func TestPhaseDefBegin(t *testing.T) {
	def := PhaseDef{Name: "round-1", Kind: "question", DurationSeconds: 150}
	start := time.Date(2025, 3, 9, 20, 0, 0, 0, time.UTC)

	phase := def.Begin(4, start)

	if phase.Name != "round-1" || phase.Index != 4 {
		t.Errorf("phase = %+v", phase)
	}
	if phase.Duration != 150*time.Second {
		t.Errorf("duration = %v, want 150s", phase.Duration)
	}
	if !phase.Deadline().Equal(start.Add(150 * time.Second)) {
		t.Errorf("deadline = %v", phase.Deadline())
	}
}

package session

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPhaseKind is assumed for script entries that do not name a kind.
const DefaultPhaseKind = "question"

// PhaseDef describes one scripted phase. Kind selects how clients present
// it; DurationSeconds bounds how long the roster gets to submit.
type PhaseDef struct {
	Name            string `yaml:"name" json:"name"`
	Kind            string `yaml:"kind" json:"kind"`
	DurationSeconds int    `yaml:"duration_seconds" json:"duration_seconds"`
}

// Begin installs the definition as a live phase at the given index and
// authoritative start time.
func (d PhaseDef) Begin(index int, start time.Time) Phase {
	return Phase{
		Name:      d.Name,
		Index:     index,
		Kind:      d.Kind,
		StartTime: start,
		Duration:  time.Duration(d.DurationSeconds) * time.Second,
	}
}

// Script is the ordered sequence of phases a session progresses through.
type Script struct {
	Name      string     `yaml:"name" json:"name"`
	AutoStart bool       `yaml:"auto_start" json:"auto_start"`
	Phases    []PhaseDef `yaml:"phases" json:"phases"`
}

// ParseScript decodes and validates a YAML script document.
func ParseScript(data []byte) (*Script, error) {
	var script Script
	if err := yaml.Unmarshal(data, &script); err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	if err := script.Validate(); err != nil {
		return nil, err
	}
	return &script, nil
}

// LoadScript reads and parses a script file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script file: %w", err)
	}
	script, err := ParseScript(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return script, nil
}

// Validate checks the script and fills in phase kind defaults.
func (s *Script) Validate() error {
	if len(s.Phases) == 0 {
		return fmt.Errorf("script has no phases")
	}
	for i := range s.Phases {
		def := &s.Phases[i]
		if def.Name == "" {
			return fmt.Errorf("phase %d has no name", i)
		}
		if def.DurationSeconds <= 0 {
			return fmt.Errorf("phase %d (%s) has non-positive duration %d", i, def.Name, def.DurationSeconds)
		}
		if def.Kind == "" {
			def.Kind = DefaultPhaseKind
		}
	}
	return nil
}

// PhaseAt returns the definition at the given index.
func (s *Script) PhaseAt(index int) (PhaseDef, bool) {
	if index < 0 || index >= len(s.Phases) {
		return PhaseDef{}, false
	}
	return s.Phases[index], true
}

// Len returns the number of scripted phases.
func (s *Script) Len() int {
	return len(s.Phases)
}

// LastIndex returns the index of the final phase.
func (s *Script) LastIndex() int {
	return len(s.Phases) - 1
}

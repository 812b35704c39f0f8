// Package iteration defines the iteration record produced by the Nova engine:
// the five ordered stages, their results, and the JSON boundary format.
package iteration

import (
	"fmt"
)

// Stage is one step of the iteration state machine. Stages are totally
// ordered by their numeric value; the zero value is not a valid stage.
type Stage int

const (
	ProblemUnpacking Stage = iota + 1
	ExpertiseAssembly
	CollaborativeIdeation
	CriticalAnalysis
	SummaryAndNextSteps
)

// Stages lists every stage in execution order.
var Stages = []Stage{
	ProblemUnpacking,
	ExpertiseAssembly,
	CollaborativeIdeation,
	CriticalAnalysis,
	SummaryAndNextSteps,
}

var stageNames = map[Stage]string{
	ProblemUnpacking:      "problem_unpacking",
	ExpertiseAssembly:     "expertise_assembly",
	CollaborativeIdeation: "collaborative_ideation",
	CriticalAnalysis:      "critical_analysis",
	SummaryAndNextSteps:   "summary_and_next_steps",
}

// String returns the wire name of the stage.
func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Valid reports whether s is one of the five stages.
func (s Stage) Valid() bool {
	return s >= ProblemUnpacking && s <= SummaryAndNextSteps
}

// Next returns the stage after s. ok is false for the final stage.
func (s Stage) Next() (next Stage, ok bool) {
	if !s.Valid() || s == SummaryAndNextSteps {
		return 0, false
	}
	return s + 1, true
}

// ParseStage converts a wire name into a Stage. Matching is case-sensitive.
func ParseStage(name string) (Stage, error) {
	for s, n := range stageNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown stage %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Stage) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid stage %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Stage) UnmarshalText(b []byte) error {
	parsed, err := ParseStage(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

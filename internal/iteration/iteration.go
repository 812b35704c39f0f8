package iteration

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/szaher/nova/internal/llm"
)

// ContinuityKey is the contributions key under which the continuity agent's
// orchestration prelude is stored.
const ContinuityKey = "Discussion Continuity Expert"

// NextStepsUndefined is stored as next steps when the summary response names none.
const NextStepsUndefined = "Not explicitly defined."

// Result is a stage result: text for most stages, contributions for
// collaborative ideation.
type Result struct {
	Text          string
	Contributions Contributions
}

// TextResult wraps s as a Result.
func TextResult(s string) Result { return Result{Text: s} }

// IsMap reports whether the result holds contributions.
func (r Result) IsMap() bool { return r.Contributions != nil }

// MarshalJSON encodes the result as a string or an ordered object.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.IsMap() {
		return r.Contributions.MarshalJSON()
	}
	return json.Marshal(r.Text)
}

// UnmarshalJSON decodes a string or object result.
func (r *Result) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var c Contributions
		if err := c.UnmarshalJSON(data); err != nil {
			return err
		}
		*r = Result{Contributions: c}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("stage result: %w", err)
	}
	*r = Result{Text: s}
	return nil
}

// StageRecord is the write-once record of a completed stage.
type StageRecord struct {
	CompletedAt time.Time `json:"completed_at"`
	Result      Result    `json:"result"`
}

// StageMap holds completed stage records. It encodes as a JSON object whose
// keys appear in stage order.
type StageMap map[Stage]StageRecord

// Completed returns the completed stages in execution order.
func (m StageMap) Completed() []Stage {
	var out []Stage
	for _, s := range Stages {
		if _, ok := m[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// MarshalJSON encodes the map with keys in stage order.
func (m StageMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, s := range m.Completed() {
		if i > 0 {
			buf.WriteByte(',')
		}
		rec, err := json.Marshal(m[s])
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(&buf, "%q:", s.String())
		buf.Write(rec)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a stage-name keyed object.
func (m *StageMap) UnmarshalJSON(data []byte) error {
	var raw map[string]StageRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(StageMap, len(raw))
	for name, rec := range raw {
		s, err := ParseStage(name)
		if err != nil {
			return err
		}
		out[s] = rec
	}
	*m = out
	return nil
}

// Iteration is one pass through the five-stage machine for a problem statement.
type Iteration struct {
	ID                     string        `json:"id"`
	SessionID              string        `json:"session_id"`
	Number                 int           `json:"number"`
	ProblemStatement       string        `json:"problem_statement"`
	StartTime              time.Time     `json:"start_time"`
	Stages                 StageMap      `json:"stages"`
	RequiredExperts        []string      `json:"required_experts"`
	ExpertiseContributions Contributions `json:"expertise_contributions"`
	CriticalAnalysis       *string       `json:"critical_analysis"`
	Summary                *string       `json:"summary"`
	NextSteps              *string       `json:"next_steps"`
	Complete               bool          `json:"complete"`
	Usage                  *llm.Usage    `json:"usage,omitempty"`
}

// New returns an empty iteration with no completed stages.
func New(id, sessionID string, number int, problem string, start time.Time) *Iteration {
	return &Iteration{
		ID:                     id,
		SessionID:              sessionID,
		Number:                 number,
		ProblemStatement:       problem,
		StartTime:              start.UTC(),
		Stages:                 StageMap{},
		RequiredExperts:        []string{},
		ExpertiseContributions: Contributions{},
	}
}

// NextStage returns the first stage not yet completed. ok is false when the
// iteration is complete.
func (it *Iteration) NextStage() (Stage, bool) {
	for _, s := range Stages {
		if _, done := it.Stages[s]; !done {
			return s, true
		}
	}
	return 0, false
}

// Has reports whether stage s has completed.
func (it *Iteration) Has(s Stage) bool {
	_, ok := it.Stages[s]
	return ok
}

// Text returns the text result of a completed stage.
func (it *Iteration) Text(s Stage) string {
	return it.Stages[s].Result.Text
}

// Clone returns a deep copy.
func (it *Iteration) Clone() *Iteration {
	if it == nil {
		return nil
	}
	out := *it
	out.Stages = make(StageMap, len(it.Stages))
	for s, rec := range it.Stages {
		rec.Result.Contributions = rec.Result.Contributions.Clone()
		out.Stages[s] = rec
	}
	out.RequiredExperts = append([]string{}, it.RequiredExperts...)
	out.ExpertiseContributions = it.ExpertiseContributions.Clone()
	if out.ExpertiseContributions == nil {
		out.ExpertiseContributions = Contributions{}
	}
	out.CriticalAnalysis = cloneString(it.CriticalAnalysis)
	out.Summary = cloneString(it.Summary)
	out.NextSteps = cloneString(it.NextSteps)
	if it.Usage != nil {
		u := *it.Usage
		out.Usage = &u
	}
	return &out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// Invariant violations reported by Validate.
var (
	ErrStageGap         = errors.New("stages are not a prefix of the stage order")
	ErrCompleteMismatch = errors.New("complete flag does not match stages")
	ErrContributors     = errors.New("contributors do not match required experts")
	ErrMissingOutputs   = errors.New("completed iteration is missing outputs")
)

// Validate checks the structural invariants of an iteration record.
func (it *Iteration) Validate() error {
	for s := range it.Stages {
		if !s.Valid() {
			return fmt.Errorf("%w: invalid stage %d", ErrStageGap, int(s))
		}
	}
	completed := it.Stages.Completed()
	for i, s := range completed {
		if s != Stages[i] {
			return fmt.Errorf("%w: %s present without %s", ErrStageGap, s, Stages[i])
		}
	}

	if it.Complete != (len(completed) == len(Stages)) {
		return fmt.Errorf("%w: complete=%t with %d stages", ErrCompleteMismatch, it.Complete, len(completed))
	}

	if it.Has(CollaborativeIdeation) {
		want := map[string]bool{ContinuityKey: true}
		for _, e := range it.RequiredExperts {
			want[e] = true
		}
		got := it.ExpertiseContributions.Keys()
		if len(got) != len(want) {
			return fmt.Errorf("%w: %d contributors for %d participants", ErrContributors, len(got), len(want))
		}
		for _, k := range got {
			if !want[k] {
				return fmt.Errorf("%w: unexpected contributor %q", ErrContributors, k)
			}
		}
	}

	if it.Complete && (it.Summary == nil || it.NextSteps == nil || it.CriticalAnalysis == nil) {
		return ErrMissingOutputs
	}
	return nil
}

// Package agent implements the role-specialized agents the Nova engine
// dispatches stage work to.
package agent

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/szaher/nova/internal/llm"
)

// Role tags an agent specialization.
type Role string

const (
	RoleContinuity       Role = "continuity"
	RoleCriticalAnalysis Role = "critical_analysis"
	RoleDomainExpert     Role = "domain_expert"
)

// Input is the request handed to an agent.
type Input struct {
	Message          string `json:"message"`
	Context          string `json:"context,omitempty"`
	ProposedSolution string `json:"proposed_solution,omitempty"`
	ProblemStatement string `json:"problem_statement,omitempty"`
}

// Structured is the parsed form of an agent response. Sections maps a
// canonical section key to the bullet items found under it.
type Structured struct {
	Sections map[string][]string `json:"sections,omitempty"`

	// Degraded is set when none of the role's section headers were found;
	// the raw text is still available in Response.Text.
	Degraded bool `json:"parse_degraded"`
}

// Response is the result of a completed agent call.
type Response struct {
	Text       string     `json:"response"`
	Structured Structured `json:"structured"`
	Usage      *llm.Usage `json:"usage,omitempty"`
}

// Reflection is the result of a self-review over recent memory.
type Reflection struct {
	Text      string    `json:"reflection"`
	Timestamp time.Time `json:"timestamp"`
}

// Agent is a role-scoped wrapper around a provider.
type Agent interface {
	ID() string
	Name() string
	Role() Role

	// Process runs one request to completion.
	Process(ctx context.Context, in Input) (*Response, error)

	// Stream runs one request, delivering text deltas as they arrive.
	Stream(ctx context.Context, in Input) (*StreamResponse, error)

	// Reflect reviews the agent's recent memory. It never touches iterations.
	Reflect(ctx context.Context) (*Reflection, error)
}

// StreamResponse carries the deltas of a streaming call. Deltas is closed
// when the provider finishes; Wait returns the final response.
type StreamResponse struct {
	Deltas <-chan string

	done chan struct{}
	resp *Response
	err  error
}

// Wait discards any unread deltas and returns the final response.
func (s *StreamResponse) Wait() (*Response, error) {
	for range s.Deltas {
	}
	<-s.done
	return s.resp, s.err
}

const previewRunes = 200

// AgentError reports a prompt the provider refused.
type AgentError struct {
	Agent     string
	Role      Role
	PromptLen int
	Preview   string
	Err       error
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("agent %s (%s): prompt of %d chars rejected: %v", e.Agent, e.Role, e.PromptLen, e.Err)
}

func (e *AgentError) Unwrap() error { return e.Err }

func newAgentError(name string, role Role, prompt string, err error) *AgentError {
	preview := prompt
	if utf8.RuneCountInString(preview) > previewRunes {
		preview = string([]rune(preview)[:previewRunes]) + "..."
	}
	return &AgentError{
		Agent:     name,
		Role:      role,
		PromptLen: utf8.RuneCountInString(prompt),
		Preview:   preview,
		Err:       err,
	}
}

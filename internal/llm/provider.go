// Package llm defines the language-model provider abstraction used by Nova agents.
//
// A Provider exposes exactly two operations: a single-shot completion and a
// streaming completion. Conversation shape is owned by the caller; providers
// only ever see one system prompt and one user prompt.
package llm

import (
	"context"
)

// Role represents a message sender role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// StopReason indicates why the model stopped generating.
type StopReason string

const (
	StopEndTurn      StopReason = "end_turn"
	StopMaxTokens    StopReason = "max_tokens"
	StopStopSequence StopReason = "stop_sequence"
)

// Params controls a single completion call. Zero values fall back to the
// provider's defaults.
type Params struct {
	Model       string   `json:"model,omitempty" yaml:"model,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`

	// Options are provider-specific and passed through to the backend as-is.
	Options map[string]any `json:"options,omitempty" yaml:"options,omitempty"`
}

// Merge returns p with empty fields filled from defaults. Options from p win
// over default options with the same key.
func (p Params) Merge(defaults Params) Params {
	out := p
	if out.Model == "" {
		out.Model = defaults.Model
	}
	if out.MaxTokens <= 0 {
		out.MaxTokens = defaults.MaxTokens
	}
	if out.Temperature == nil && defaults.Temperature != nil {
		t := *defaults.Temperature
		out.Temperature = &t
	}
	if len(defaults.Options) > 0 {
		merged := make(map[string]any, len(defaults.Options)+len(p.Options))
		for k, v := range defaults.Options {
			merged[k] = v
		}
		for k, v := range p.Options {
			merged[k] = v
		}
		out.Options = merged
	}
	return out
}

// Temperature returns a pointer to t, for use in Params literals.
func Temperature(t float64) *float64 { return &t }

// Usage tracks token consumption for a single call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	CacheRead    int `json:"cache_read,omitempty"`
	CacheWrite   int `json:"cache_write,omitempty"`
}

// Total returns input plus output tokens.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// Completion is the full result of a non-streaming call.
type Completion struct {
	Content    string     `json:"content"`
	StopReason StopReason `json:"stop_reason,omitempty"`
	Usage      *Usage     `json:"usage,omitempty"`
}

// Stream event types.
const (
	EventText  = "text"
	EventDone  = "done"
	EventError = "error"
)

// StreamEvent is one element of a streaming completion. A stream carries zero
// or more text events followed by exactly one done or error event, after
// which the channel is closed.
type StreamEvent struct {
	Type string `json:"type"`

	// Text is the delta for text events.
	Text string `json:"text,omitempty"`

	// Completion is set on the done event; its Content is the concatenation
	// of every preceding text delta.
	Completion *Completion `json:"completion,omitempty"`

	// Err is set on error events.
	Err error `json:"-"`
}

// Provider is the narrow interface every model backend implements.
type Provider interface {
	// Name identifies the backend, e.g. "openai" or "ollama".
	Name() string

	// Defaults returns the default generation parameters.
	Defaults() Params

	// Complete returns the full generated text for one system/user prompt pair.
	Complete(ctx context.Context, system, prompt string, params Params) (*Completion, error)

	// CompleteStream returns a channel of text deltas whose concatenation
	// equals what Complete would have returned. The channel is finite and
	// cannot be restarted.
	CompleteStream(ctx context.Context, system, prompt string, params Params) (<-chan StreamEvent, error)
}

// Collect drains a stream and returns the accumulated completion. onText, if
// non-nil, is called with every delta as it arrives.
func Collect(ch <-chan StreamEvent, onText func(string)) (*Completion, error) {
	var done *Completion
	var text []byte
	for ev := range ch {
		switch ev.Type {
		case EventText:
			text = append(text, ev.Text...)
			if onText != nil {
				onText(ev.Text)
			}
		case EventDone:
			done = ev.Completion
		case EventError:
			// Drain so the producer can exit.
			for range ch {
			}
			return nil, ev.Err
		}
	}
	if done == nil {
		done = &Completion{StopReason: StopEndTurn}
	}
	done.Content = string(text)
	return done, nil
}

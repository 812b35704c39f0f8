package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MockResponse configures a single response from the mock provider.
type MockResponse struct {
	Content string
	Usage   *Usage
	Error   error

	// Chunks, if set, are the stream deltas; they should concatenate to Content.
	// When empty, Content is streamed as a single delta.
	Chunks []string

	// Delay is waited before responding; the wait honours ctx cancellation.
	Delay time.Duration
}

// MockCall records one request made to the mock provider.
type MockCall struct {
	System string
	Prompt string
	Params Params
	Stream bool
}

// MockProvider is a scripted Provider for tests.
type MockProvider struct {
	mu        sync.Mutex
	responses []MockResponse
	respond   func(system, prompt string) MockResponse
	callIndex int
	calls     []MockCall
	defaults  Params
}

// NewMockProvider creates a mock with a sequence of responses. Responses are
// returned in order; once exhausted the last response repeats.
func NewMockProvider(responses ...MockResponse) *MockProvider {
	return &MockProvider{responses: responses, defaults: Params{Model: "mock", MaxTokens: 1000, Temperature: Temperature(0.7)}}
}

// NewMockProviderFunc creates a mock whose response is computed from the prompt.
func NewMockProviderFunc(fn func(system, prompt string) MockResponse) *MockProvider {
	return &MockProvider{respond: fn, defaults: Params{Model: "mock", MaxTokens: 1000, Temperature: Temperature(0.7)}}
}

// Name returns "mock".
func (m *MockProvider) Name() string { return "mock" }

// Defaults returns the default generation parameters.
func (m *MockProvider) Defaults() Params { return m.defaults }

func (m *MockProvider) next(system, prompt string, params Params, stream bool) (MockResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, MockCall{System: system, Prompt: prompt, Params: params.Merge(m.defaults), Stream: stream})

	if m.respond != nil {
		return m.respond(system, prompt), nil
	}
	if len(m.responses) == 0 {
		return MockResponse{}, &ProviderError{Provider: "mock", Kind: KindInternal, Message: "no responses configured"}
	}
	idx := m.callIndex
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	} else {
		m.callIndex++
	}
	return m.responses[idx], nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		if ctx.Err() != nil {
			return Classify(ctx, "mock", ctx.Err())
		}
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return Classify(ctx, "mock", ctx.Err())
	}
}

// Complete returns the next configured response.
func (m *MockProvider) Complete(ctx context.Context, system, prompt string, params Params) (*Completion, error) {
	resp, err := m.next(system, prompt, params, false)
	if err != nil {
		return nil, err
	}
	if err := wait(ctx, resp.Delay); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return &Completion{Content: resp.Content, StopReason: StopEndTurn, Usage: resp.Usage}, nil
}

// CompleteStream streams the next configured response.
func (m *MockProvider) CompleteStream(ctx context.Context, system, prompt string, params Params) (<-chan StreamEvent, error) {
	resp, err := m.next(system, prompt, params, true)
	if err != nil {
		return nil, err
	}
	if err := wait(ctx, resp.Delay); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error
	}

	chunks := resp.Chunks
	if len(chunks) == 0 && resp.Content != "" {
		chunks = []string{resp.Content}
	}
	if joined := strings.Join(chunks, ""); joined != resp.Content && resp.Content != "" {
		return nil, fmt.Errorf("mock: chunks %q do not concatenate to content %q", joined, resp.Content)
	}

	ch := make(chan StreamEvent, len(chunks)+1)
	go func() {
		defer close(ch)
		var sb strings.Builder
		for _, c := range chunks {
			sb.WriteString(c)
			ch <- StreamEvent{Type: EventText, Text: c}
		}
		ch <- StreamEvent{Type: EventDone, Completion: &Completion{Content: sb.String(), StopReason: StopEndTurn, Usage: resp.Usage}}
	}()
	return ch, nil
}

// Calls returns all requests made to the mock.
func (m *MockProvider) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// Reset clears call history and rewinds the response sequence.
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callIndex = 0
	m.calls = nil
}

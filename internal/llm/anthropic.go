package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"
)

// AnthropicProvider implements Provider using the Anthropic Messages API.
type AnthropicProvider struct {
	client            anthropic.Client
	clientOpts        []option.RequestOption
	defaults          Params
	firstTokenTimeout time.Duration
	logger            *slog.Logger
}

// AnthropicOption configures an AnthropicProvider.
type AnthropicOption func(*AnthropicProvider)

// WithAnthropicDefaults sets the default generation parameters.
func WithAnthropicDefaults(p Params) AnthropicOption {
	return func(a *AnthropicProvider) { a.defaults = p.Merge(a.defaults) }
}

// WithAnthropicFirstTokenTimeout bounds the wait for the first generated token.
func WithAnthropicFirstTokenTimeout(d time.Duration) AnthropicOption {
	return func(a *AnthropicProvider) { a.firstTokenTimeout = d }
}

// WithAnthropicRequestOptions passes SDK request options (base URL, HTTP
// client, retries) to the underlying client.
func WithAnthropicRequestOptions(opts ...option.RequestOption) AnthropicOption {
	return func(a *AnthropicProvider) { a.clientOpts = append(a.clientOpts, opts...) }
}

// NewAnthropicProvider creates a provider. An empty apiKey makes the SDK read
// ANTHROPIC_API_KEY from the environment.
func NewAnthropicProvider(apiKey string, opts ...AnthropicOption) *AnthropicProvider {
	var clientOpts []option.RequestOption
	if apiKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(apiKey))
	}
	// Retries are a caller concern.
	clientOpts = append(clientOpts, option.WithMaxRetries(0))
	a := &AnthropicProvider{
		clientOpts: clientOpts,
		defaults: Params{
			Model:       "claude-sonnet-4-20250514",
			MaxTokens:   1000,
			Temperature: Temperature(0.7),
		},
		firstTokenTimeout: 60 * time.Second,
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.client = anthropic.NewClient(a.clientOpts...)
	return a
}

// Name returns the backend name.
func (a *AnthropicProvider) Name() string { return string(BackendAnthropic) }

// Defaults returns the default generation parameters.
func (a *AnthropicProvider) Defaults() Params { return a.defaults }

// Complete sends a non-streaming request.
func (a *AnthropicProvider) Complete(ctx context.Context, system, prompt string, params Params) (*Completion, error) {
	ctx, cancel := completeContext(ctx, a.firstTokenTimeout)
	defer cancel()

	p := params.Merge(a.defaults)
	msg, err := a.client.Messages.New(ctx, a.buildParams(system, prompt, p), requestOptions(p)...)
	if err != nil {
		return nil, a.classify(ctx, err)
	}
	return parseAnthropicMessage(msg), nil
}

// CompleteStream sends a streaming request.
func (a *AnthropicProvider) CompleteStream(ctx context.Context, system, prompt string, params Params) (<-chan StreamEvent, error) {
	ctx, received, cancel := streamContext(ctx, a.firstTokenTimeout)

	p := params.Merge(a.defaults)
	stream := a.client.Messages.NewStreaming(ctx, a.buildParams(system, prompt, p), requestOptions(p)...)

	ch := make(chan StreamEvent, 64)
	go func() {
		defer close(ch)
		defer cancel(nil)
		defer stream.Close()

		var acc anthropic.Message
		for stream.Next() {
			event := stream.Current()
			if err := acc.Accumulate(event); err != nil {
				a.logger.Debug("anthropic: accumulate stream event", "error", err)
			}
			if event.Type == "content_block_delta" && event.Delta.Type == "text_delta" && event.Delta.Text != "" {
				received()
				ch <- StreamEvent{Type: EventText, Text: event.Delta.Text}
			}
		}
		if err := stream.Err(); err != nil {
			ch <- StreamEvent{Type: EventError, Err: a.classify(ctx, err)}
			return
		}
		ch <- StreamEvent{Type: EventDone, Completion: parseAnthropicMessage(&acc)}
	}()

	return ch, nil
}

func (a *AnthropicProvider) buildParams(system, prompt string, p Params) anthropic.MessageNewParams {
	maxTokens := p.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1000
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.Model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if p.Temperature != nil {
		// Anthropic accepts [0,1].
		t := *p.Temperature
		if t > 1 {
			t = 1
		}
		params.Temperature = param.NewOpt(t)
	}
	return params
}

func (a *AnthropicProvider) classify(ctx context.Context, err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &ProviderError{
			Provider:   a.Name(),
			Kind:       KindForStatus(apiErr.StatusCode),
			StatusCode: apiErr.StatusCode,
			Err:        err,
		}
	}
	return Classify(ctx, a.Name(), err)
}

// requestOptions forwards provider-specific options as raw JSON fields.
func requestOptions(p Params) []option.RequestOption {
	opts := make([]option.RequestOption, 0, len(p.Options))
	for k, v := range p.Options {
		opts = append(opts, option.WithJSONSet(k, v))
	}
	return opts
}

func parseAnthropicMessage(msg *anthropic.Message) *Completion {
	out := &Completion{
		StopReason: mapAnthropicStopReason(msg.StopReason),
		Usage: &Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
			CacheRead:    int(msg.Usage.CacheReadInputTokens),
			CacheWrite:   int(msg.Usage.CacheCreationInputTokens),
		},
	}
	for _, block := range msg.Content {
		if block.Type == "text" {
			out.Content += block.Text
		}
	}
	return out
}

func mapAnthropicStopReason(reason anthropic.StopReason) StopReason {
	switch reason {
	case anthropic.StopReasonMaxTokens:
		return StopMaxTokens
	case anthropic.StopReasonStopSequence:
		return StopStopSequence
	default:
		return StopEndTurn
	}
}

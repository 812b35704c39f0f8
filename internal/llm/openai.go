package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Default endpoints.
const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOllamaHost    = "http://localhost:11434"
)

// OpenAIProvider implements Provider against an OpenAI-compatible chat
// completions endpoint. The same wire format serves the hosted OpenAI API,
// a local Ollama server (via its /v1 endpoint), vLLM and LiteLLM.
type OpenAIProvider struct {
	name              string
	baseURL           string
	apiKey            string
	httpClient        *http.Client
	defaults          Params
	firstTokenTimeout time.Duration
	logger            *slog.Logger
}

// Option configures an HTTP-backed provider.
type Option func(*OpenAIProvider)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *OpenAIProvider) { o.httpClient = c }
}

// WithDefaults sets the default generation parameters.
func WithDefaults(p Params) Option {
	return func(o *OpenAIProvider) { o.defaults = p.Merge(o.defaults) }
}

// WithFirstTokenTimeout bounds the wait for the first generated token.
// Zero disables the deadline.
func WithFirstTokenTimeout(d time.Duration) Option {
	return func(o *OpenAIProvider) { o.firstTokenTimeout = d }
}

// WithLogger sets the logger used for stream diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *OpenAIProvider) { o.logger = l }
}

func newHTTPProvider(name, baseURL, apiKey, model string, opts []Option) *OpenAIProvider {
	p := &OpenAIProvider{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: http.DefaultClient,
		defaults: Params{
			Model:       model,
			MaxTokens:   1000,
			Temperature: Temperature(0.7),
		},
		firstTokenTimeout: 60 * time.Second,
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewOpenAIProvider creates a provider for the hosted OpenAI API.
func NewOpenAIProvider(apiKey string, opts ...Option) *OpenAIProvider {
	return newHTTPProvider(string(BackendOpenAI), DefaultOpenAIBaseURL, apiKey, "gpt-4o-mini", opts)
}

// NewOpenAICompatibleProvider creates a provider for any OpenAI-compatible endpoint.
func NewOpenAICompatibleProvider(baseURL, apiKey string, opts ...Option) *OpenAIProvider {
	return newHTTPProvider(string(BackendOpenAI), baseURL, apiKey, "gpt-4o-mini", opts)
}

// NewOllamaProvider creates a provider for a locally hosted Ollama server.
// The API key is never sent.
func NewOllamaProvider(host string, opts ...Option) *OpenAIProvider {
	if host == "" {
		host = DefaultOllamaHost
	}
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	return newHTTPProvider(string(BackendOllama), strings.TrimRight(host, "/")+"/v1", "", "llama3.2", opts)
}

// Name returns the backend name.
func (c *OpenAIProvider) Name() string { return c.name }

// Defaults returns the default generation parameters.
func (c *OpenAIProvider) Defaults() Params { return c.defaults }

// --- OpenAI API wire types ---

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiResponse struct {
	Choices []oaiChoice `json:"choices"`
	Usage   *oaiUsage   `json:"usage,omitempty"`
	Error   *oaiError   `json:"error,omitempty"`
}

type oaiChoice struct {
	Message      oaiMessage `json:"message"`
	Delta        oaiMessage `json:"delta"`
	FinishReason string     `json:"finish_reason"`
}

type oaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type oaiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Complete sends a non-streaming chat request.
func (c *OpenAIProvider) Complete(ctx context.Context, system, prompt string, params Params) (*Completion, error) {
	ctx, cancel := completeContext(ctx, c.firstTokenTimeout)
	defer cancel()

	body, err := c.doRequest(ctx, c.buildRequest(system, prompt, params.Merge(c.defaults), false))
	if err != nil {
		return nil, Classify(ctx, c.name, err)
	}
	defer body.Close()

	var resp oaiResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, Classify(ctx, c.name, fmt.Errorf("decode response: %w", err))
	}
	if resp.Error != nil {
		return nil, &ProviderError{Provider: c.name, Kind: KindInternal, Message: resp.Error.Type + ": " + resp.Error.Message}
	}
	return parseOAIResponse(&resp), nil
}

// CompleteStream sends a streaming chat request.
func (c *OpenAIProvider) CompleteStream(ctx context.Context, system, prompt string, params Params) (<-chan StreamEvent, error) {
	ctx, received, cancel := streamContext(ctx, c.firstTokenTimeout)

	body, err := c.doRequest(ctx, c.buildRequest(system, prompt, params.Merge(c.defaults), true))
	if err != nil {
		err = Classify(ctx, c.name, err)
		cancel(nil)
		return nil, err
	}

	ch := make(chan StreamEvent, 64)
	go func() {
		defer close(ch)
		defer cancel(nil)
		defer body.Close()

		var (
			content      strings.Builder
			usage        *oaiUsage
			finishReason string
		)

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				break
			}

			var chunk oaiResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				c.logger.Debug("skipping malformed stream chunk", "provider", c.name, "error", err)
				continue
			}
			if chunk.Error != nil {
				ch <- StreamEvent{Type: EventError, Err: &ProviderError{
					Provider: c.name, Kind: KindInternal, Message: chunk.Error.Type + ": " + chunk.Error.Message,
				}}
				return
			}
			if chunk.Usage != nil && chunk.Usage.TotalTokens > 0 {
				usage = chunk.Usage
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]
			if choice.FinishReason != "" {
				finishReason = choice.FinishReason
			}
			if choice.Delta.Content != "" {
				received()
				content.WriteString(choice.Delta.Content)
				select {
				case ch <- StreamEvent{Type: EventText, Text: choice.Delta.Content}:
				case <-ctx.Done():
					ch <- StreamEvent{Type: EventError, Err: Classify(ctx, c.name, ctx.Err())}
					return
				}
			}
		}
		if err := scanner.Err(); err != nil {
			ch <- StreamEvent{Type: EventError, Err: Classify(ctx, c.name, err)}
			return
		}

		ch <- StreamEvent{Type: EventDone, Completion: &Completion{
			Content:    content.String(),
			StopReason: mapOAIStopReason(finishReason),
			Usage:      usageFromOAI(usage),
		}}
	}()

	return ch, nil
}

// buildRequest produces the JSON body. Provider-specific options are copied
// first so the core fields always take precedence.
func (c *OpenAIProvider) buildRequest(system, prompt string, params Params, stream bool) map[string]any {
	req := make(map[string]any, len(params.Options)+5)
	for k, v := range params.Options {
		req[k] = v
	}

	messages := make([]oaiMessage, 0, 2)
	if system != "" {
		messages = append(messages, oaiMessage{Role: string(RoleSystem), Content: system})
	}
	messages = append(messages, oaiMessage{Role: string(RoleUser), Content: prompt})

	req["model"] = params.Model
	req["messages"] = messages
	if params.MaxTokens > 0 {
		req["max_tokens"] = params.MaxTokens
	}
	if params.Temperature != nil {
		req["temperature"] = *params.Temperature
	}
	if stream {
		req["stream"] = true
	} else {
		delete(req, "stream")
	}
	return req
}

func (c *OpenAIProvider) doRequest(ctx context.Context, req map[string]any) (io.ReadCloser, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &ProviderError{Provider: c.name, Kind: KindRejected, Message: "marshal request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &ProviderError{Provider: c.name, Kind: KindRejected, Message: "create request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		pe := &ProviderError{Provider: c.name, Kind: KindForStatus(resp.StatusCode), StatusCode: resp.StatusCode}
		var oaiErr oaiResponse
		if err := json.NewDecoder(resp.Body).Decode(&oaiErr); err == nil && oaiErr.Error != nil {
			pe.Message = oaiErr.Error.Type + ": " + oaiErr.Error.Message
		}
		return nil, pe
	}

	return resp.Body, nil
}

func parseOAIResponse(resp *oaiResponse) *Completion {
	out := &Completion{StopReason: StopEndTurn, Usage: usageFromOAI(resp.Usage)}
	if len(resp.Choices) > 0 {
		out.Content = resp.Choices[0].Message.Content
		out.StopReason = mapOAIStopReason(resp.Choices[0].FinishReason)
	}
	return out
}

func usageFromOAI(u *oaiUsage) *Usage {
	if u == nil {
		return nil
	}
	return &Usage{InputTokens: u.PromptTokens, OutputTokens: u.CompletionTokens}
}

func mapOAIStopReason(reason string) StopReason {
	switch reason {
	case "length":
		return StopMaxTokens
	default:
		return StopEndTurn
	}
}

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
)

// --- ParseModelString Tests (table-driven) ---

func TestParseModelString(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")

	tests := []struct {
		name        string
		input       string
		wantBackend Backend
		wantModel   string
	}{
		{name: "anthropic prefix", input: "anthropic/claude-3", wantBackend: BackendAnthropic, wantModel: "claude-3"},
		{name: "openai prefix", input: "openai/gpt-4", wantBackend: BackendOpenAI, wantModel: "gpt-4"},
		{name: "ollama prefix", input: "ollama/llama2", wantBackend: BackendOllama, wantModel: "llama2"},
		{name: "claude inferred", input: "claude-sonnet-4-20250514", wantBackend: BackendAnthropic, wantModel: "claude-sonnet-4-20250514"},
		{name: "gpt inferred", input: "gpt-4o", wantBackend: BackendOpenAI, wantModel: "gpt-4o"},
		{name: "o3 inferred", input: "o3-mini", wantBackend: BackendOpenAI, wantModel: "o3-mini"},
		{name: "unknown defaults to openai", input: "llama3.2", wantBackend: BackendOpenAI, wantModel: "llama3.2"},
		{name: "case-insensitive prefix", input: "Ollama/mistral", wantBackend: BackendOllama, wantModel: "mistral"},
		{name: "unknown prefix kept", input: "meta/llama", wantBackend: BackendOpenAI, wantModel: "meta/llama"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotBackend, gotModel := ParseModelString(tt.input)
			if gotBackend != tt.wantBackend {
				t.Errorf("ParseModelString(%q) backend = %q, want %q", tt.input, gotBackend, tt.wantBackend)
			}
			if gotModel != tt.wantModel {
				t.Errorf("ParseModelString(%q) model = %q, want %q", tt.input, gotModel, tt.wantModel)
			}
		})
	}
}

func TestParseModelStringWithOllamaEnv(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "http://localhost:11434")
	t.Setenv("OPENAI_API_KEY", "")

	backend, model := ParseModelString("llama3.2")
	if backend != BackendOllama {
		t.Errorf("expected BackendOllama when OLLAMA_HOST is set, got %q", backend)
	}
	if model != "llama3.2" {
		t.Errorf("expected model 'llama3.2', got %q", model)
	}
}

func TestNewSelectsBackend(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_BASE_URL", "")
	t.Setenv("ANTHROPIC_API_KEY", "")

	tests := []struct {
		name      string
		settings  Settings
		wantName  string
		wantModel string
	}{
		{name: "ollama prefix", settings: Settings{Model: "ollama/llama3.2"}, wantName: "ollama", wantModel: "llama3.2"},
		{name: "explicit backend", settings: Settings{Backend: BackendOllama, Model: "phi3"}, wantName: "ollama", wantModel: "phi3"},
		{name: "openai", settings: Settings{Model: "gpt-4o", APIKey: "k"}, wantName: "openai", wantModel: "gpt-4o"},
		{name: "anthropic", settings: Settings{Model: "claude-3-haiku", APIKey: "k"}, wantName: "anthropic", wantModel: "claude-3-haiku"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.settings)
			if p.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", p.Name(), tt.wantName)
			}
			if p.Defaults().Model != tt.wantModel {
				t.Errorf("Defaults().Model = %q, want %q", p.Defaults().Model, tt.wantModel)
			}
		})
	}
}

// --- Params Tests ---

func TestParamsMerge(t *testing.T) {
	defaults := Params{
		Model:       "base",
		MaxTokens:   1000,
		Temperature: Temperature(0.7),
		Options:     map[string]any{"top_p": 0.9, "seed": 1},
	}

	got := Params{MaxTokens: 500, Options: map[string]any{"seed": 42}}.Merge(defaults)
	if got.Model != "base" {
		t.Errorf("Model = %q, want %q", got.Model, "base")
	}
	if got.MaxTokens != 500 {
		t.Errorf("MaxTokens = %d, want 500", got.MaxTokens)
	}
	if got.Temperature == nil || *got.Temperature != 0.7 {
		t.Errorf("Temperature = %v, want 0.7", got.Temperature)
	}
	if got.Options["seed"] != 42 || got.Options["top_p"] != 0.9 {
		t.Errorf("Options = %v, want seed=42 top_p=0.9", got.Options)
	}

	// Merged temperature must not alias the default.
	*got.Temperature = 1.5
	if *defaults.Temperature != 0.7 {
		t.Error("Merge aliased the default temperature")
	}
}

// --- Error taxonomy Tests ---

func TestProviderErrorIs(t *testing.T) {
	tests := []struct {
		kind     ErrorKind
		matches  []error
		excludes []error
	}{
		{KindUnavailable, []error{ErrUnavailable}, []error{ErrRejected, ErrTimeout}},
		{KindRejected, []error{ErrRejected}, []error{ErrRateLimited, ErrInternal}},
		{KindRateLimited, []error{ErrRateLimited, ErrRejected}, []error{ErrUnavailable}},
		{KindTimeout, []error{ErrTimeout}, []error{ErrCancelled}},
		{KindInternal, []error{ErrInternal}, []error{ErrRejected}},
		{KindCancelled, []error{ErrCancelled}, []error{ErrTimeout}},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", &ProviderError{Provider: "p", Kind: tt.kind})
			for _, target := range tt.matches {
				if !errors.Is(err, target) {
					t.Errorf("errors.Is(%v, %v) = false, want true", err, target)
				}
			}
			for _, target := range tt.excludes {
				if errors.Is(err, target) {
					t.Errorf("errors.Is(%v, %v) = true, want false", err, target)
				}
			}
		})
	}
}

func TestKindForStatus(t *testing.T) {
	tests := map[int]ErrorKind{
		400: KindRejected,
		401: KindRejected,
		403: KindRejected,
		408: KindTimeout,
		422: KindRejected,
		429: KindRateLimited,
		500: KindInternal,
		502: KindUnavailable,
		503: KindUnavailable,
		504: KindTimeout,
	}
	for status, want := range tests {
		if got := KindForStatus(status); got != want {
			t.Errorf("KindForStatus(%d) = %q, want %q", status, got, want)
		}
	}
}

func TestClassifyContextErrors(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Classify(cancelled, "p", context.Canceled); !errors.Is(err, ErrCancelled) {
		t.Errorf("cancelled context classified as %v, want ErrCancelled", err)
	}

	timedOut, cancelCause := context.WithCancelCause(context.Background())
	cancelCause(errFirstToken)
	if err := Classify(timedOut, "p", context.Canceled); !errors.Is(err, ErrTimeout) {
		t.Errorf("first-token cancellation classified as %v, want ErrTimeout", err)
	}

	if err := Classify(context.Background(), "p", errors.New("boom")); !errors.Is(err, ErrInternal) {
		t.Errorf("unknown error classified as %v, want ErrInternal", err)
	}

	orig := &ProviderError{Provider: "p", Kind: KindRejected}
	if err := Classify(context.Background(), "q", orig); err != orig {
		t.Error("Classify should return existing ProviderErrors unchanged")
	}
}

// --- TokenTracker Tests ---

func TestTokenTracker(t *testing.T) {
	var tracker TokenTracker

	tracker.Add(&Usage{InputTokens: 100, OutputTokens: 50, CacheRead: 10, CacheWrite: 5})
	tracker.Add(&Usage{InputTokens: 200, OutputTokens: 100, CacheRead: 20, CacheWrite: 10})
	tracker.Add(nil)

	usage := tracker.Usage()
	if usage.InputTokens != 300 || usage.OutputTokens != 150 {
		t.Errorf("usage = %+v, want input 300 output 150", usage)
	}
	if usage.CacheRead != 30 || usage.CacheWrite != 15 {
		t.Errorf("cache usage = %+v, want read 30 write 15", usage)
	}
	if usage.Total() != 450 {
		t.Errorf("Total() = %d, want 450", usage.Total())
	}
	if tracker.Calls() != 3 {
		t.Errorf("Calls() = %d, want 3", tracker.Calls())
	}
}

func TestTokenTrackerConcurrentAdd(t *testing.T) {
	var tracker TokenTracker
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.Add(&Usage{InputTokens: 1, OutputTokens: 2})
		}()
	}
	wg.Wait()
	if got := tracker.Usage(); got.InputTokens != 20 || got.OutputTokens != 40 {
		t.Errorf("usage = %+v", got)
	}
}

// --- MockProvider Tests ---

func TestMockProviderSequence(t *testing.T) {
	mock := NewMockProvider(
		MockResponse{Content: "first"},
		MockResponse{Content: "second"},
	)
	ctx := context.Background()

	for _, want := range []string{"first", "second", "second"} {
		resp, err := mock.Complete(ctx, "sys", "prompt", Params{})
		if err != nil {
			t.Fatalf("Complete error: %v", err)
		}
		if resp.Content != want {
			t.Errorf("Content = %q, want %q", resp.Content, want)
		}
	}

	calls := mock.Calls()
	if len(calls) != 3 {
		t.Fatalf("expected 3 calls, got %d", len(calls))
	}
	if calls[0].System != "sys" || calls[0].Prompt != "prompt" {
		t.Errorf("call recorded as %+v", calls[0])
	}
	if calls[0].Params.MaxTokens != 1000 {
		t.Errorf("recorded params should be merged with defaults, got %+v", calls[0].Params)
	}

	mock.Reset()
	if len(mock.Calls()) != 0 {
		t.Error("Reset should clear calls")
	}
}

func TestMockProviderError(t *testing.T) {
	mock := NewMockProvider(MockResponse{Error: &ProviderError{Provider: "mock", Kind: KindTimeout}})
	_, err := mock.Complete(context.Background(), "", "p", Params{})
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
	_, err = mock.CompleteStream(context.Background(), "", "p", Params{})
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout from stream, got %v", err)
	}
}

func TestMockProviderNoResponses(t *testing.T) {
	_, err := NewMockProvider().Complete(context.Background(), "", "p", Params{})
	if !errors.Is(err, ErrInternal) {
		t.Errorf("expected ErrInternal with no responses, got %v", err)
	}
}

func TestMockProviderCancelledDuringDelay(t *testing.T) {
	mock := NewMockProvider(MockResponse{Content: "late", Delay: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := mock.Complete(ctx, "", "p", Params{})
	if !errors.Is(err, ErrCancelled) {
		t.Errorf("expected ErrCancelled, got %v", err)
	}
}

func TestMockProviderStreamMatchesComplete(t *testing.T) {
	mock := NewMockProvider(MockResponse{Content: "Hello world!", Chunks: []string{"Hel", "lo ", "world!"}})
	ch, err := mock.CompleteStream(context.Background(), "", "p", Params{})
	if err != nil {
		t.Fatalf("CompleteStream error: %v", err)
	}

	var deltas []string
	resp, err := Collect(ch, func(s string) { deltas = append(deltas, s) })
	if err != nil {
		t.Fatalf("Collect error: %v", err)
	}
	if len(deltas) != 3 {
		t.Errorf("expected 3 deltas, got %d", len(deltas))
	}
	if resp.Content != "Hello world!" {
		t.Errorf("Content = %q, want %q", resp.Content, "Hello world!")
	}
	if !mock.Calls()[0].Stream {
		t.Error("stream call not recorded as streaming")
	}
}

func TestMockProviderFunc(t *testing.T) {
	mock := NewMockProviderFunc(func(_, prompt string) MockResponse {
		return MockResponse{Content: strings.ToUpper(prompt)}
	})
	resp, err := mock.Complete(context.Background(), "", "abc", Params{})
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if resp.Content != "ABC" {
		t.Errorf("Content = %q, want ABC", resp.Content)
	}
}

func TestCollectError(t *testing.T) {
	ch := make(chan StreamEvent, 3)
	ch <- StreamEvent{Type: EventText, Text: "partial"}
	ch <- StreamEvent{Type: EventError, Err: &ProviderError{Provider: "p", Kind: KindUnavailable}}
	close(ch)

	_, err := Collect(ch, nil)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

// --- OpenAI Provider Tests (using httptest) ---

func TestOpenAIProviderComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("expected /chat/completions path, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("expected Authorization 'Bearer test-key', got %q", r.Header.Get("Authorization"))
		}

		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req["model"] != "gpt-test" {
			t.Errorf("model = %v, want gpt-test", req["model"])
		}
		if req["max_tokens"] != float64(250) {
			t.Errorf("max_tokens = %v, want 250", req["max_tokens"])
		}
		if req["temperature"] != 0.2 {
			t.Errorf("temperature = %v, want 0.2", req["temperature"])
		}
		if req["top_p"] != 0.5 {
			t.Errorf("provider option top_p not passed through: %v", req["top_p"])
		}
		if _, ok := req["stream"]; ok {
			t.Error("stream must not be set on non-streaming requests")
		}
		msgs, _ := req["messages"].([]any)
		if len(msgs) != 2 {
			t.Fatalf("expected system+user messages, got %d", len(msgs))
		}
		first := msgs[0].(map[string]any)
		if first["role"] != "system" || first["content"] != "be brief" {
			t.Errorf("system message = %v", first)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"Hello from OpenAI!"},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":20,"total_tokens":30}}`)
	}))
	defer server.Close()

	p := NewOpenAICompatibleProvider(server.URL+"/v1", "test-key", WithDefaults(Params{Model: "gpt-test"}))
	resp, err := p.Complete(context.Background(), "be brief", "hi", Params{
		MaxTokens:   250,
		Temperature: Temperature(0.2),
		Options:     map[string]any{"top_p": 0.5},
	})
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if resp.Content != "Hello from OpenAI!" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Usage == nil || resp.Usage.InputTokens != 10 || resp.Usage.OutputTokens != 20 {
		t.Errorf("Usage = %+v", resp.Usage)
	}
	if resp.StopReason != StopEndTurn {
		t.Errorf("StopReason = %q", resp.StopReason)
	}
}

func TestOpenAIProviderHTTPErrors(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrRejected},
		{http.StatusBadRequest, ErrRejected},
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusServiceUnavailable, ErrUnavailable},
		{http.StatusInternalServerError, ErrInternal},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = fmt.Fprint(w, `{"error":{"type":"test_error","message":"nope"}}`)
			}))
			defer server.Close()

			p := NewOpenAICompatibleProvider(server.URL, "k")
			_, err := p.Complete(context.Background(), "", "hi", Params{})
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			var pe *ProviderError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *ProviderError, got %T", err)
			}
			if pe.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", pe.StatusCode, tt.status)
			}
			if !strings.Contains(pe.Message, "nope") {
				t.Errorf("Message = %q, want backend message", pe.Message)
			}
		})
	}
}

func TestOpenAIProviderUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	p := NewOpenAICompatibleProvider(url, "k")
	_, err := p.Complete(context.Background(), "", "hi", Params{})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestOpenAIProviderCompleteTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	p := NewOpenAICompatibleProvider(server.URL, "k", WithFirstTokenTimeout(20*time.Millisecond))
	_, err := p.Complete(context.Background(), "", "hi", Params{})
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
}

func TestOpenAIProviderCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	p := NewOpenAICompatibleProvider(server.URL, "k", WithFirstTokenTimeout(0))
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := p.Complete(ctx, "", "hi", Params{})
	if !errors.Is(err, ErrCancelled) {
		t.Errorf("expected ErrCancelled, got %v", err)
	}
}

func sseServer(t *testing.T, chunks []string, pause time.Duration) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["stream"] != true {
			t.Error("expected stream=true for CompleteStream")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		if pause > 0 {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(pause):
			}
		}
		for _, chunk := range chunks {
			_, _ = fmt.Fprintf(w, "data: %s\n\n", chunk)
			flusher.Flush()
		}
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
}

func TestOpenAIProviderStream(t *testing.T) {
	server := sseServer(t, []string{
		`{"choices":[{"delta":{"content":"Hello "}}]}`,
		`not json`,
		`{"choices":[{"delta":{"content":"world!"}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":3,"total_tokens":8}}`,
	}, 0)
	defer server.Close()

	p := NewOpenAICompatibleProvider(server.URL, "key")
	ch, err := p.CompleteStream(context.Background(), "", "hi", Params{})
	if err != nil {
		t.Fatalf("CompleteStream error: %v", err)
	}

	var deltas []string
	resp, err := Collect(ch, func(s string) { deltas = append(deltas, s) })
	if err != nil {
		t.Fatalf("Collect error: %v", err)
	}
	if strings.Join(deltas, "") != "Hello world!" {
		t.Errorf("deltas = %q", deltas)
	}
	if resp.Content != "Hello world!" {
		t.Errorf("Content = %q, want %q", resp.Content, "Hello world!")
	}
	if resp.Usage == nil || resp.Usage.Total() != 8 {
		t.Errorf("Usage = %+v, want total 8", resp.Usage)
	}
}

func TestOpenAIProviderStreamFirstTokenTimeout(t *testing.T) {
	server := sseServer(t, []string{`{"choices":[{"delta":{"content":"late"}}]}`}, 2*time.Second)
	defer server.Close()

	p := NewOpenAICompatibleProvider(server.URL, "key", WithFirstTokenTimeout(30*time.Millisecond))
	ch, err := p.CompleteStream(context.Background(), "", "hi", Params{})
	if err != nil {
		if !errors.Is(err, ErrTimeout) {
			t.Fatalf("expected ErrTimeout, got %v", err)
		}
		return
	}
	_, err = Collect(ch, nil)
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
}

func TestOpenAIProviderStreamDeadlineLiftedAfterFirstToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		_, _ = fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n\n")
		flusher.Flush()
		time.Sleep(80 * time.Millisecond)
		_, _ = fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}\n\n")
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
	defer server.Close()

	p := NewOpenAICompatibleProvider(server.URL, "key", WithFirstTokenTimeout(40*time.Millisecond))
	ch, err := p.CompleteStream(context.Background(), "", "hi", Params{})
	if err != nil {
		t.Fatalf("CompleteStream error: %v", err)
	}
	resp, err := Collect(ch, nil)
	if err != nil {
		t.Fatalf("Collect error: %v", err)
	}
	if resp.Content != "ab" {
		t.Errorf("Content = %q, want %q", resp.Content, "ab")
	}
}

func TestNewOllamaProvider(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"", "http://localhost:11434/v1"},
		{"http://gpu-box:11434/", "http://gpu-box:11434/v1"},
		{"gpu-box:11434", "http://gpu-box:11434/v1"},
	}
	for _, tt := range tests {
		p := NewOllamaProvider(tt.host)
		if p.baseURL != tt.want {
			t.Errorf("NewOllamaProvider(%q).baseURL = %q, want %q", tt.host, p.baseURL, tt.want)
		}
		if p.Name() != "ollama" {
			t.Errorf("Name() = %q, want ollama", p.Name())
		}
	}
}

func TestOllamaProviderNoAuthHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q, want /v1/chat/completions", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "" {
			t.Errorf("expected no Authorization header, got %q", auth)
		}
		_, _ = fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"local"},"finish_reason":"stop"}]}`)
	}))
	defer server.Close()

	p := NewOllamaProvider(server.URL)
	resp, err := p.Complete(context.Background(), "", "hi", Params{})
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if resp.Content != "local" {
		t.Errorf("Content = %q, want local", resp.Content)
	}
}

// --- Anthropic Provider Tests ---

func TestAnthropicProviderComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/messages") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-test",
			"content":[{"type":"text","text":"Hello from Claude"}],
			"stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":4}}`)
	}))
	defer server.Close()

	p := NewAnthropicProvider("test-key", WithAnthropicRequestOptions(option.WithBaseURL(server.URL)))
	resp, err := p.Complete(context.Background(), "sys", "hi", Params{Model: "claude-test"})
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if resp.Content != "Hello from Claude" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Usage == nil || resp.Usage.Total() != 7 {
		t.Errorf("Usage = %+v, want total 7", resp.Usage)
	}
}

func TestAnthropicProviderRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = fmt.Fprint(w, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
	}))
	defer server.Close()

	p := NewAnthropicProvider("bad-key", WithAnthropicRequestOptions(option.WithBaseURL(server.URL)))
	_, err := p.Complete(context.Background(), "", "hi", Params{})
	if !errors.Is(err, ErrRejected) {
		t.Errorf("expected ErrRejected, got %v", err)
	}
}

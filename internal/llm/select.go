package llm

import (
	"os"
	"strings"
	"time"
)

// Backend identifies a provider implementation.
type Backend string

const (
	BackendAnthropic Backend = "anthropic"
	BackendOllama    Backend = "ollama"
	BackendOpenAI    Backend = "openai"
)

// ParseModelString parses a model string into backend and model name.
//
// Supported formats:
//
//	"ollama/llama3.2"          → (ollama, "llama3.2")
//	"openai/gpt-4o"            → (openai, "gpt-4o")
//	"claude-sonnet-4-20250514" → (anthropic, "claude-sonnet-4-20250514")
//	"gpt-4o"                   → (openai, "gpt-4o")
//	"llama3.2"                 → (ollama, "llama3.2") if OLLAMA_HOST set
//	"llama3.2"                 → (openai, "llama3.2") otherwise
func ParseModelString(model string) (Backend, string) {
	if i := strings.Index(model, "/"); i > 0 {
		prefix := strings.ToLower(model[:i])
		name := model[i+1:]
		switch Backend(prefix) {
		case BackendOllama, BackendOpenAI, BackendAnthropic:
			return Backend(prefix), name
		}
	}

	lower := strings.ToLower(model)
	if strings.HasPrefix(lower, "claude") {
		return BackendAnthropic, model
	}
	if strings.HasPrefix(lower, "gpt-") || strings.HasPrefix(lower, "o1") || strings.HasPrefix(lower, "o3") || strings.HasPrefix(lower, "o4") {
		return BackendOpenAI, model
	}

	if os.Getenv("OLLAMA_HOST") != "" {
		return BackendOllama, model
	}
	if os.Getenv("ANTHROPIC_API_KEY") != "" && os.Getenv("OPENAI_API_KEY") == "" {
		return BackendAnthropic, model
	}
	return BackendOpenAI, model
}

// Settings are the provider-level configuration values.
type Settings struct {
	Backend           Backend
	Model             string
	BaseURL           string
	APIKey            string
	Temperature       *float64
	MaxTokens         int
	FirstTokenTimeout time.Duration
}

// New constructs a provider from settings. An empty Backend is inferred from
// the model string. Missing URLs and keys are read from the environment:
//
//	OPENAI_API_KEY     hosted OpenAI key
//	OPENAI_BASE_URL    custom OpenAI-compatible base URL
//	OLLAMA_HOST        Ollama server address (default: http://localhost:11434)
//	ANTHROPIC_API_KEY  read by the Anthropic SDK when APIKey is empty
func New(s Settings) Provider {
	backend, model := s.Backend, s.Model
	if backend == "" {
		backend, model = ParseModelString(s.Model)
	} else if b, m := ParseModelString(s.Model); b == backend {
		model = m
	}

	defaults := Params{Model: model, MaxTokens: s.MaxTokens, Temperature: s.Temperature}
	timeout := s.FirstTokenTimeout

	switch backend {
	case BackendOllama:
		host := s.BaseURL
		if host == "" {
			host = os.Getenv("OLLAMA_HOST")
		}
		opts := []Option{WithDefaults(defaults)}
		if timeout > 0 {
			opts = append(opts, WithFirstTokenTimeout(timeout))
		}
		return NewOllamaProvider(host, opts...)

	case BackendAnthropic:
		opts := []AnthropicOption{WithAnthropicDefaults(defaults)}
		if timeout > 0 {
			opts = append(opts, WithAnthropicFirstTokenTimeout(timeout))
		}
		return NewAnthropicProvider(s.APIKey, opts...)

	default:
		apiKey := s.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		baseURL := s.BaseURL
		if baseURL == "" {
			baseURL = os.Getenv("OPENAI_BASE_URL")
		}
		opts := []Option{WithDefaults(defaults)}
		if timeout > 0 {
			opts = append(opts, WithFirstTokenTimeout(timeout))
		}
		if baseURL != "" {
			return NewOpenAICompatibleProvider(baseURL, apiKey, opts...)
		}
		return NewOpenAIProvider(apiKey, opts...)
	}
}

// Package config loads Nova configuration from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/szaher/nova/internal/agent"
	"github.com/szaher/nova/internal/llm"
	"github.com/szaher/nova/internal/memory"
	"github.com/szaher/nova/internal/nova"
)

// Defaults.
const (
	DefaultTemperature       = 0.7
	DefaultMaxOutputTokens   = 1000
	DefaultSummaryMaxTokens  = 500
	DefaultFirstTokenTimeout = 60 * time.Second
	DefaultMemoryMaxEntries  = 200
)

// Config is the top-level Nova configuration.
type Config struct {
	Provider ProviderConfig `yaml:"provider"`
	Agents   AgentsConfig   `yaml:"agents"`
	Engine   EngineConfig   `yaml:"engine"`
	Memory   MemoryConfig   `yaml:"memory"`
	Log      LogConfig      `yaml:"log"`
}

// ProviderConfig selects and parameterizes the model backend.
type ProviderConfig struct {
	// Kind is openai, ollama or anthropic. Empty infers it from Model.
	Kind              string        `yaml:"kind,omitempty"`
	Model             string        `yaml:"model,omitempty"`
	BaseURL           string        `yaml:"base_url,omitempty"`
	APIKey            string        `yaml:"api_key,omitempty"`
	Temperature       *float64      `yaml:"temperature,omitempty"`
	MaxOutputTokens   int           `yaml:"max_output_tokens,omitempty"`
	FirstTokenTimeout time.Duration `yaml:"first_token_timeout,omitempty"`
}

// AgentConfig overrides provider defaults for one role.
type AgentConfig struct {
	SystemPrompt       string   `yaml:"system_prompt,omitempty"`
	Model              string   `yaml:"model,omitempty"`
	Temperature        *float64 `yaml:"temperature,omitempty"`
	MaxOutputTokens    int      `yaml:"max_output_tokens,omitempty"`
	ConversationWindow int      `yaml:"conversation_window,omitempty"`
}

// AgentsConfig holds per-role overrides.
type AgentsConfig struct {
	Continuity       AgentConfig `yaml:"continuity"`
	CriticalAnalysis AgentConfig `yaml:"critical_analysis"`
	DomainExpert     AgentConfig `yaml:"domain_expert"`
}

// EngineConfig tunes the iteration engine.
type EngineConfig struct {
	ParallelExperts  bool   `yaml:"parallel_experts"`
	ExpertFilter     string `yaml:"expert_filter,omitempty"`
	MaxExperts       int    `yaml:"max_experts,omitempty"`
	SummaryMaxTokens int    `yaml:"summary_max_output_tokens,omitempty"`
}

// MemoryConfig selects the agent memory strategy.
type MemoryConfig struct {
	Strategy   string `yaml:"strategy"`
	MaxEntries int    `yaml:"max_entries"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	t := DefaultTemperature
	return &Config{
		Provider: ProviderConfig{
			Temperature:       &t,
			MaxOutputTokens:   DefaultMaxOutputTokens,
			FirstTokenTimeout: DefaultFirstTokenTimeout,
		},
		Engine: EngineConfig{SummaryMaxTokens: DefaultSummaryMaxTokens},
		Memory: MemoryConfig{Strategy: string(memory.StrategySlidingWindow), MaxEntries: DefaultMemoryMaxEntries},
		Log:    LogConfig{Level: "info", Format: "json"},
	}
}

// Load returns defaults overlaid by the YAML file at path (if non-empty)
// and then by the environment. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays environment variables. API keys and hosts are only
// taken from the environment when the file leaves them empty; the
// provider constructors read them directly in that case.
//
//	NOVA_MODEL      provider.model
//	NOVA_PROVIDER   provider.kind
//	NOVA_LOG_LEVEL  log.level
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("NOVA_MODEL"); ok && v != "" {
		c.Provider.Model = v
	}
	if v, ok := lookup("NOVA_PROVIDER"); ok && v != "" {
		c.Provider.Kind = v
	}
	if v, ok := lookup("NOVA_LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
}

// Validate checks value ranges and that the expert filter compiles.
func (c *Config) Validate() error {
	var errs []error

	switch llm.Backend(strings.ToLower(c.Provider.Kind)) {
	case "", llm.BackendOpenAI, llm.BackendOllama, llm.BackendAnthropic:
	default:
		errs = append(errs, fmt.Errorf("provider.kind: unknown backend %q", c.Provider.Kind))
	}
	if c.Provider.FirstTokenTimeout < 0 {
		errs = append(errs, fmt.Errorf("provider.first_token_timeout: must not be negative"))
	}
	errs = append(errs, checkParams("provider", c.Provider.Temperature, c.Provider.MaxOutputTokens, 0)...)
	errs = append(errs, checkParams("agents.continuity", c.Agents.Continuity.Temperature, c.Agents.Continuity.MaxOutputTokens, c.Agents.Continuity.ConversationWindow)...)
	errs = append(errs, checkParams("agents.critical_analysis", c.Agents.CriticalAnalysis.Temperature, c.Agents.CriticalAnalysis.MaxOutputTokens, c.Agents.CriticalAnalysis.ConversationWindow)...)
	errs = append(errs, checkParams("agents.domain_expert", c.Agents.DomainExpert.Temperature, c.Agents.DomainExpert.MaxOutputTokens, c.Agents.DomainExpert.ConversationWindow)...)

	if c.Engine.MaxExperts < 0 {
		errs = append(errs, fmt.Errorf("engine.max_experts: must not be negative"))
	}
	if c.Engine.SummaryMaxTokens < 0 {
		errs = append(errs, fmt.Errorf("engine.summary_max_output_tokens: must not be negative"))
	}
	if c.Engine.ExpertFilter != "" {
		if _, err := nova.CompileExpertFilter(c.Engine.ExpertFilter); err != nil {
			errs = append(errs, fmt.Errorf("engine.expert_filter: %w", err))
		}
	}

	switch memory.Strategy(c.Memory.Strategy) {
	case "", memory.StrategySlidingWindow, memory.StrategySummary:
	default:
		errs = append(errs, fmt.Errorf("memory.strategy: unknown strategy %q", c.Memory.Strategy))
	}
	if c.Memory.MaxEntries < 0 {
		errs = append(errs, fmt.Errorf("memory.max_entries: must not be negative"))
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func checkParams(prefix string, temp *float64, maxTokens, window int) []error {
	var errs []error
	if temp != nil && (*temp < 0 || *temp > 2) {
		errs = append(errs, fmt.Errorf("%s.temperature: %v outside [0, 2]", prefix, *temp))
	}
	if maxTokens < 0 {
		errs = append(errs, fmt.Errorf("%s.max_output_tokens: must not be negative", prefix))
	}
	if window < 0 {
		errs = append(errs, fmt.Errorf("%s.conversation_window: must not be negative", prefix))
	}
	return errs
}

// ProviderSettings converts the provider section for llm.New.
func (c *Config) ProviderSettings() llm.Settings {
	return llm.Settings{
		Backend:           llm.Backend(strings.ToLower(c.Provider.Kind)),
		Model:             c.Provider.Model,
		BaseURL:           c.Provider.BaseURL,
		APIKey:            c.Provider.APIKey,
		Temperature:       c.Provider.Temperature,
		MaxTokens:         c.Provider.MaxOutputTokens,
		FirstTokenTimeout: c.Provider.FirstTokenTimeout,
	}
}

// AgentConfig returns the agent configuration for role bound to provider.
func (c *Config) AgentConfig(role agent.Role, provider llm.Provider) agent.Config {
	var ac AgentConfig
	switch role {
	case agent.RoleContinuity:
		ac = c.Agents.Continuity
	case agent.RoleCriticalAnalysis:
		ac = c.Agents.CriticalAnalysis
	case agent.RoleDomainExpert:
		ac = c.Agents.DomainExpert
	}
	return agent.Config{
		Provider:           provider,
		SystemPrompt:       ac.SystemPrompt,
		Model:              ac.Model,
		Temperature:        ac.Temperature,
		MaxTokens:          ac.MaxOutputTokens,
		ConversationWindow: ac.ConversationWindow,
		MemoryStrategy:     memory.Strategy(c.Memory.Strategy),
		MemoryMaxEntries:   c.Memory.MaxEntries,
	}
}

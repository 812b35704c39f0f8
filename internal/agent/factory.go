package agent

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/szaher/nova/internal/llm"
	"github.com/szaher/nova/internal/memory"
)

// Factory errors.
var (
	ErrUnknownRole    = errors.New("unknown agent role")
	ErrDomainRequired = errors.New("domain is required for domain_expert agents")
	ErrNoProvider     = errors.New("agent requires a provider")
)

// Config configures an agent. Zero values fall back to role and provider
// defaults.
type Config struct {
	Provider llm.Provider

	// Domain and Description apply to domain_expert agents only.
	Domain      string
	Description string

	SystemPrompt       string
	Model              string
	Temperature        *float64
	MaxTokens          int
	ConversationWindow int

	MemoryStrategy   memory.Strategy
	MemoryMaxEntries int

	Logger *slog.Logger
}

func (c Config) memoryStore() memory.Store {
	if c.MemoryStrategy == memory.StrategySummary && c.Provider != nil {
		return memory.NewSummary(c.MemoryMaxEntries, c.Provider, llm.Params{Model: c.Model})
	}
	return memory.NewSlidingWindow(c.MemoryMaxEntries)
}

// CreateAgent returns a ready agent of the given role bound to cfg.Provider.
func CreateAgent(role Role, cfg Config) (Agent, error) {
	if cfg.Provider == nil {
		return nil, ErrNoProvider
	}
	switch role {
	case RoleContinuity:
		return NewContinuity(cfg), nil
	case RoleCriticalAnalysis:
		return NewCritic(cfg), nil
	case RoleDomainExpert:
		if cfg.Domain == "" {
			return nil, ErrDomainRequired
		}
		return NewDomainExpert(cfg.Domain, cfg.Description, cfg), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
}

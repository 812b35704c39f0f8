package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/szaher/nova/internal/ids"
	"github.com/szaher/nova/internal/llm"
	"github.com/szaher/nova/internal/memory"
)

// DefaultConversationWindow is the number of prior exchanges included in a prompt.
const DefaultConversationWindow = 10

// base implements the behaviour shared by every role: memory, prompt
// composition, the provider call and parsing.
type base struct {
	id           string
	name         string
	role         Role
	provider     llm.Provider
	params       llm.Params
	systemPrompt string
	instructions string
	window       int
	memory       memory.Store
	parser       *Parser
	logger       *slog.Logger
}

func newBase(role Role, name string, cfg Config, systemPrompt, instructions string, parser *Parser) *base {
	if cfg.SystemPrompt != "" {
		systemPrompt = cfg.SystemPrompt
	}
	window := cfg.ConversationWindow
	if window <= 0 {
		window = DefaultConversationWindow
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	b := &base{
		id:           ids.New(ids.Agent),
		name:         name,
		role:         role,
		provider:     cfg.Provider,
		params:       llm.Params{Model: cfg.Model, MaxTokens: cfg.MaxTokens, Temperature: cfg.Temperature},
		systemPrompt: systemPrompt,
		instructions: instructions,
		window:       window,
		memory:       cfg.memoryStore(),
		parser:       parser,
	}
	b.logger = logger.With("agent", b.name, "role", string(role))
	return b
}

func (b *base) ID() string   { return b.id }
func (b *base) Name() string { return b.name }
func (b *base) Role() Role   { return b.role }

// Process records the input, calls the provider and parses the reply.
func (b *base) Process(ctx context.Context, in Input) (*Response, error) {
	prompt, err := b.prepare(ctx, in)
	if err != nil {
		return nil, err
	}
	comp, err := b.provider.Complete(ctx, b.systemPrompt, prompt, b.params)
	return b.finish(ctx, prompt, comp, err)
}

// Stream is Process with deltas delivered as they arrive.
func (b *base) Stream(ctx context.Context, in Input) (*StreamResponse, error) {
	prompt, err := b.prepare(ctx, in)
	if err != nil {
		return nil, err
	}
	ch, err := b.provider.CompleteStream(ctx, b.systemPrompt, prompt, b.params)
	if err != nil {
		_, err = b.finish(ctx, prompt, nil, err)
		return nil, err
	}

	deltas := make(chan string)
	sr := &StreamResponse{Deltas: deltas, done: make(chan struct{})}
	go func() {
		defer close(sr.done)
		defer close(deltas)
		comp, err := llm.Collect(ch, func(text string) { deltas <- text })
		sr.resp, sr.err = b.finish(ctx, prompt, comp, err)
	}()
	return sr, nil
}

// Reflect asks the provider to review the agent's recent exchanges.
func (b *base) Reflect(ctx context.Context) (*Reflection, error) {
	entries, err := b.memory.Load(ctx, b.id)
	if err != nil {
		return nil, fmt.Errorf("load memory: %w", err)
	}
	recent := memory.Recent(entries, b.window)
	if len(recent) == 0 {
		return &Reflection{Text: "No recent activity to reflect on.", Timestamp: time.Now().UTC()}, nil
	}

	var sb strings.Builder
	sb.WriteString("Review your recent contributions below. Identify gaps, inaccuracies, ")
	sb.WriteString("or assumptions worth revisiting, and say what you would change.\n\n")
	writeHistory(&sb, recent)

	prompt := sb.String()
	comp, err := b.provider.Complete(ctx, b.systemPrompt, prompt, b.params)
	if err != nil {
		return nil, b.wrap(prompt, err)
	}
	r := &Reflection{Text: comp.Content, Timestamp: time.Now().UTC()}
	if err := b.memory.Append(ctx, b.id, memory.Entry{Kind: memory.KindReflection, Content: r.Text, Timestamp: r.Timestamp}); err != nil {
		return nil, fmt.Errorf("record reflection: %w", err)
	}
	return r, nil
}

// prepare records the input and composes the prompt.
func (b *base) prepare(ctx context.Context, in Input) (string, error) {
	entry := memory.Entry{Kind: memory.KindInput, Content: in.Message, Timestamp: time.Now().UTC()}
	if err := b.memory.Append(ctx, b.id, entry); err != nil {
		return "", fmt.Errorf("record input: %w", err)
	}
	entries, err := b.memory.Load(ctx, b.id)
	if err != nil {
		return "", fmt.Errorf("load memory: %w", err)
	}
	prompt := b.compose(in, memory.LatestSummary(entries), memory.Recent(entries, b.window))
	b.logger.DebugContext(ctx, "provider call", "prompt_len", len(prompt), "provider", b.provider.Name())
	return prompt, nil
}

// compose concatenates the prompt sections in a fixed order: problem
// statement, request, context, proposed solution, history, instructions.
func (b *base) compose(in Input, summary string, history []memory.Exchange) string {
	var sb strings.Builder
	if in.ProblemStatement != "" {
		fmt.Fprintf(&sb, "## Problem Statement\n%s\n\n", in.ProblemStatement)
	}
	fmt.Fprintf(&sb, "## Current Request\n%s\n\n", in.Message)
	if in.Context != "" {
		fmt.Fprintf(&sb, "## Context\n%s\n\n", in.Context)
	}
	if in.ProposedSolution != "" {
		fmt.Fprintf(&sb, "## Proposed Solution\n%s\n\n", in.ProposedSolution)
	}
	if summary != "" || len(history) > 0 {
		sb.WriteString("## Relevant History\n")
		if summary != "" {
			fmt.Fprintf(&sb, "Earlier conversation (summarized): %s\n\n", summary)
		}
		writeHistory(&sb, history)
	}
	sb.WriteString("## Instructions\n")
	sb.WriteString(b.instructions)
	return sb.String()
}

func writeHistory(sb *strings.Builder, history []memory.Exchange) {
	for _, ex := range history {
		fmt.Fprintf(sb, "User: %s\nAssistant: %s\n\n", ex.Input.Content, ex.Response.Content)
	}
}

// finish parses a completion and records it, or maps the provider error.
func (b *base) finish(ctx context.Context, prompt string, comp *llm.Completion, err error) (*Response, error) {
	if err != nil {
		b.logger.DebugContext(ctx, "provider call failed", "error", err)
		return nil, b.wrap(prompt, err)
	}
	resp := &Response{
		Text:       comp.Content,
		Structured: b.parser.Parse(comp.Content),
		Usage:      comp.Usage,
	}
	entry := memory.Entry{
		Kind:       memory.KindResponse,
		Content:    resp.Text,
		Structured: resp.Structured.Sections,
		Timestamp:  time.Now().UTC(),
	}
	if err := b.memory.Append(ctx, b.id, entry); err != nil {
		return nil, fmt.Errorf("record response: %w", err)
	}
	return resp, nil
}

// wrap surfaces refused prompts as AgentError; every other provider
// failure propagates unchanged.
func (b *base) wrap(prompt string, err error) error {
	if errors.Is(err, llm.ErrRejected) {
		return newAgentError(b.name, b.role, prompt, err)
	}
	return err
}

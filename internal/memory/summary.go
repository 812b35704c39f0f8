package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/szaher/nova/internal/llm"
)

// Summary implements memory with provider-backed compaction. When the entry
// count exceeds the threshold, older entries are folded into one summary entry.
type Summary struct {
	mu        sync.Mutex
	threshold int
	owners    map[string][]Entry
	provider  llm.Provider
	params    llm.Params
}

// NewSummary creates a summarizing memory store.
func NewSummary(threshold int, provider llm.Provider, params llm.Params) *Summary {
	if threshold <= 0 {
		threshold = 20
	}
	if params.MaxTokens <= 0 {
		params.MaxTokens = 500
	}
	return &Summary{
		threshold: threshold,
		owners:    make(map[string][]Entry),
		provider:  provider,
		params:    params,
	}
}

// Load retrieves the entries for an owner.
func (s *Summary) Load(_ context.Context, owner string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.owners[owner]
	result := make([]Entry, len(entries))
	copy(result, entries)
	return result, nil
}

// Append adds entries and summarizes once the threshold is exceeded.
func (s *Summary) Append(ctx context.Context, owner string, entries ...Entry) error {
	s.mu.Lock()
	existing := append(s.owners[owner], entries...)
	s.owners[owner] = existing
	needsSummary := len(existing) > s.threshold
	s.mu.Unlock()

	if needsSummary {
		return s.summarize(ctx, owner)
	}
	return nil
}

// Clear removes all entries for an owner.
func (s *Summary) Clear(_ context.Context, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.owners, owner)
	return nil
}

func (s *Summary) summarize(ctx context.Context, owner string) error {
	s.mu.Lock()
	entries := s.owners[owner]
	if len(entries) <= s.threshold {
		s.mu.Unlock()
		return nil
	}

	// Keep an even number of recent entries so exchanges stay paired.
	keepCount := s.threshold / 2
	keepCount -= keepCount % 2
	cut := len(entries) - keepCount
	toSummarize := append([]Entry(nil), entries[:cut]...)
	s.mu.Unlock()

	var sb strings.Builder
	for _, e := range toSummarize {
		fmt.Fprintf(&sb, "%s: %s\n", e.Kind, e.Content)
	}

	resp, err := s.provider.Complete(ctx, "",
		"Summarize this conversation concisely, preserving key facts and decisions:\n\n"+sb.String(),
		s.params)
	if err != nil {
		return fmt.Errorf("summarize memory: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Entries appended while the provider call ran are preserved.
	current := s.owners[owner]
	if len(current) < cut {
		return nil
	}
	summarized := make([]Entry, 0, len(current)-cut+1)
	summarized = append(summarized, Entry{Kind: KindSummary, Content: resp.Content, Timestamp: time.Now()})
	summarized = append(summarized, current[cut:]...)
	s.owners[owner] = summarized
	return nil
}

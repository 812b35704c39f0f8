package memory

import (
	"context"
	"sync"
)

// SlidingWindow implements a fixed-size entry history with FIFO eviction.
type SlidingWindow struct {
	mu         sync.Mutex
	maxEntries int
	owners     map[string][]Entry
}

// NewSlidingWindow creates a sliding window memory store.
// maxEntries is the maximum number of entries retained per owner.
func NewSlidingWindow(maxEntries int) *SlidingWindow {
	if maxEntries <= 0 {
		maxEntries = 200
	}
	return &SlidingWindow{
		maxEntries: maxEntries,
		owners:     make(map[string][]Entry),
	}
}

// Load retrieves the entries for an owner.
func (s *SlidingWindow) Load(_ context.Context, owner string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.owners[owner]
	result := make([]Entry, len(entries))
	copy(result, entries)
	return result, nil
}

// Append adds entries and evicts the oldest when the window is exceeded.
func (s *SlidingWindow) Append(_ context.Context, owner string, entries ...Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := append(s.owners[owner], entries...)
	if len(existing) > s.maxEntries {
		existing = existing[len(existing)-s.maxEntries:]
	}
	s.owners[owner] = existing
	return nil
}

// Clear removes all entries for an owner.
func (s *SlidingWindow) Clear(_ context.Context, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.owners, owner)
	return nil
}

package llm

import "sync"

// TokenTracker sums usage across the provider calls of one unit of work.
// The zero value is ready to use and safe for concurrent Add calls.
type TokenTracker struct {
	mu    sync.Mutex
	calls int
	sum   Usage
}

// Add folds one call's usage into the total. Calls that reported no usage
// still count toward Calls.
func (t *TokenTracker) Add(u *Usage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	if u == nil {
		return
	}
	t.sum.InputTokens += u.InputTokens
	t.sum.OutputTokens += u.OutputTokens
	t.sum.CacheRead += u.CacheRead
	t.sum.CacheWrite += u.CacheWrite
}

func (t *TokenTracker) Usage() Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sum
}

// Calls is the number of Add calls so far.
func (t *TokenTracker) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

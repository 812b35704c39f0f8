// Package memory implements agent-private conversation memory.
package memory

import (
	"context"
	"time"
)

// Strategy identifies a memory management strategy.
type Strategy string

const (
	StrategySlidingWindow Strategy = "sliding_window"
	StrategySummary       Strategy = "summary"
)

// Kind labels a memory entry.
type Kind string

const (
	KindInput      Kind = "input"
	KindResponse   Kind = "response"
	KindSummary    Kind = "summary"
	KindReflection Kind = "reflection"
)

// Entry is one record in an agent's memory.
type Entry struct {
	Kind       Kind                `json:"kind"`
	Content    string              `json:"content"`
	Structured map[string][]string `json:"structured,omitempty"`
	Timestamp  time.Time           `json:"timestamp"`
}

// Exchange pairs an input with the response that answered it.
type Exchange struct {
	Input    Entry
	Response Entry
}

// Store manages memory entries per owner (an agent id).
type Store interface {
	// Load returns a copy of the owner's entries, oldest first.
	Load(ctx context.Context, owner string) ([]Entry, error)

	// Append adds entries, applying the store's retention strategy.
	Append(ctx context.Context, owner string, entries ...Entry) error

	// Clear removes all entries for the owner.
	Clear(ctx context.Context, owner string) error
}

// Exchanges pairs each input entry with the next response entry. Inputs
// without a response yet (the in-flight request) are dropped.
func Exchanges(entries []Entry) []Exchange {
	var out []Exchange
	var pending *Entry
	for i := range entries {
		switch entries[i].Kind {
		case KindInput:
			pending = &entries[i]
		case KindResponse:
			if pending != nil {
				out = append(out, Exchange{Input: *pending, Response: entries[i]})
				pending = nil
			}
		}
	}
	return out
}

// Recent returns at most the last k exchanges. k <= 0 returns none.
func Recent(entries []Entry, k int) []Exchange {
	if k <= 0 {
		return nil
	}
	ex := Exchanges(entries)
	if len(ex) > k {
		ex = ex[len(ex)-k:]
	}
	return ex
}

// LatestSummary returns the content of the most recent summary entry, if any.
func LatestSummary(entries []Entry) string {
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Kind == KindSummary {
			return entries[i].Content
		}
	}
	return ""
}

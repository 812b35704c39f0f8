package memory

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/szaher/nova/internal/llm"
)

func input(s string) Entry    { return Entry{Kind: KindInput, Content: s} }
func response(s string) Entry { return Entry{Kind: KindResponse, Content: s} }

// --- SlidingWindow Tests ---

func TestNewSlidingWindow(t *testing.T) {
	t.Run("valid size", func(t *testing.T) {
		sw := NewSlidingWindow(10)
		if sw.maxEntries != 10 {
			t.Errorf("expected maxEntries=10, got %d", sw.maxEntries)
		}
	})

	t.Run("non-positive size defaults to 200", func(t *testing.T) {
		for _, n := range []int{0, -5} {
			if sw := NewSlidingWindow(n); sw.maxEntries != 200 {
				t.Errorf("NewSlidingWindow(%d).maxEntries = %d, want 200", n, sw.maxEntries)
			}
		}
	})
}

func TestSlidingWindowAppendAndLoad(t *testing.T) {
	ctx := context.Background()
	sw := NewSlidingWindow(10)

	if err := sw.Append(ctx, "agt_1", input("hello"), response("hi there")); err != nil {
		t.Fatalf("Append returned error: %v", err)
	}

	loaded, err := sw.Load(ctx, "agt_1")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(loaded))
	}
	if loaded[0].Content != "hello" || loaded[1].Content != "hi there" {
		t.Errorf("unexpected entries: %+v", loaded)
	}

	loaded[0].Content = "modified"
	reloaded, _ := sw.Load(ctx, "agt_1")
	if reloaded[0].Content != "hello" {
		t.Error("Load should return a copy, not the internal slice")
	}
}

func TestSlidingWindowEviction(t *testing.T) {
	ctx := context.Background()
	sw := NewSlidingWindow(3)

	for i := 0; i < 5; i++ {
		if err := sw.Append(ctx, "a", input(fmt.Sprintf("e-%d", i))); err != nil {
			t.Fatalf("Append returned error: %v", err)
		}
	}

	loaded, _ := sw.Load(ctx, "a")
	if len(loaded) != 3 {
		t.Fatalf("expected 3 entries after eviction, got %d", len(loaded))
	}
	for i, want := range []string{"e-2", "e-3", "e-4"} {
		if loaded[i].Content != want {
			t.Errorf("entry %d = %q, want %q", i, loaded[i].Content, want)
		}
	}
}

func TestSlidingWindowOwnerIsolation(t *testing.T) {
	ctx := context.Background()
	sw := NewSlidingWindow(10)

	_ = sw.Append(ctx, "a", input("a-msg"))
	_ = sw.Append(ctx, "b", input("b-msg"))

	if err := sw.Clear(ctx, "a"); err != nil {
		t.Fatalf("Clear error: %v", err)
	}

	a, _ := sw.Load(ctx, "a")
	b, _ := sw.Load(ctx, "b")
	if len(a) != 0 {
		t.Errorf("expected 0 entries for cleared owner, got %d", len(a))
	}
	if len(b) != 1 || b[0].Content != "b-msg" {
		t.Errorf("owner b entries corrupted: %+v", b)
	}
}

// --- Exchange selection Tests ---

func TestExchangesPairsInputsAndResponses(t *testing.T) {
	entries := []Entry{
		input("q1"), response("a1"),
		{Kind: KindReflection, Content: "r"},
		input("q2"), response("a2"),
		input("q3"),
	}
	ex := Exchanges(entries)
	if len(ex) != 2 {
		t.Fatalf("expected 2 exchanges, got %d", len(ex))
	}
	if ex[1].Input.Content != "q2" || ex[1].Response.Content != "a2" {
		t.Errorf("unexpected second exchange: %+v", ex[1])
	}
}

func TestRecent(t *testing.T) {
	var entries []Entry
	for i := 1; i <= 4; i++ {
		entries = append(entries, input(fmt.Sprintf("q%d", i)), response(fmt.Sprintf("a%d", i)))
	}

	tests := []struct {
		k         int
		wantFirst string
		wantLen   int
	}{
		{k: 3, wantFirst: "q2", wantLen: 3},
		{k: 10, wantFirst: "q1", wantLen: 4},
		{k: 0, wantLen: 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("k=%d", tt.k), func(t *testing.T) {
			got := Recent(entries, tt.k)
			if len(got) != tt.wantLen {
				t.Fatalf("len = %d, want %d", len(got), tt.wantLen)
			}
			if tt.wantLen > 0 && got[0].Input.Content != tt.wantFirst {
				t.Errorf("first input = %q, want %q", got[0].Input.Content, tt.wantFirst)
			}
		})
	}
}

// --- Summary Tests ---

func TestNewSummaryDefaults(t *testing.T) {
	s := NewSummary(0, llm.NewMockProvider(), llm.Params{})
	if s.threshold != 20 {
		t.Errorf("expected threshold=20 for zero input, got %d", s.threshold)
	}
	if s.params.MaxTokens != 500 {
		t.Errorf("expected MaxTokens=500, got %d", s.params.MaxTokens)
	}
}

func TestSummaryBelowThreshold(t *testing.T) {
	ctx := context.Background()
	mock := llm.NewMockProvider()
	s := NewSummary(10, mock, llm.Params{})

	if err := s.Append(ctx, "a", input("hello"), response("hi")); err != nil {
		t.Fatalf("Append returned error: %v", err)
	}
	if len(mock.Calls()) != 0 {
		t.Errorf("expected no provider calls below threshold, got %d", len(mock.Calls()))
	}
	loaded, _ := s.Load(ctx, "a")
	if len(loaded) != 2 {
		t.Errorf("expected 2 entries, got %d", len(loaded))
	}
}

func TestSummaryAboveThreshold(t *testing.T) {
	ctx := context.Background()
	mock := llm.NewMockProvider(llm.MockResponse{Content: "Summary of earlier conversation."})
	s := NewSummary(4, mock, llm.Params{})

	var entries []Entry
	for i := 0; i < 3; i++ {
		entries = append(entries, input(fmt.Sprintf("q%d", i)), response(fmt.Sprintf("a%d", i)))
	}
	if err := s.Append(ctx, "a", entries...); err != nil {
		t.Fatalf("Append returned error: %v", err)
	}

	calls := mock.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 provider call, got %d", len(calls))
	}
	if !strings.Contains(calls[0].Prompt, "input: q0") {
		t.Errorf("summary prompt missing oldest entry: %q", calls[0].Prompt)
	}

	// 1 summary + threshold/2 = 2 kept entries.
	loaded, _ := s.Load(ctx, "a")
	if len(loaded) != 3 {
		t.Fatalf("expected 3 entries after summarization, got %d", len(loaded))
	}
	if loaded[0].Kind != KindSummary || loaded[0].Content != "Summary of earlier conversation." {
		t.Errorf("first entry = %+v, want summary", loaded[0])
	}
	if loaded[1].Content != "q2" || loaded[2].Content != "a2" {
		t.Errorf("kept entries = %+v, want the last exchange", loaded[1:])
	}
	if got := LatestSummary(loaded); got != "Summary of earlier conversation." {
		t.Errorf("LatestSummary = %q", got)
	}
}

func TestSummaryProviderError(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Error: &llm.ProviderError{Provider: "mock", Kind: llm.KindUnavailable}})
	s := NewSummary(1, mock, llm.Params{})

	err := s.Append(context.Background(), "a", input("q"), response("a"))
	if err == nil {
		t.Fatal("expected summarization error")
	}
	loaded, _ := s.Load(context.Background(), "a")
	if len(loaded) != 2 {
		t.Errorf("entries should be kept uncompacted on failure, got %d", len(loaded))
	}
}

func TestStoresImplementStore(t *testing.T) {
	var _ Store = (*SlidingWindow)(nil)
	var _ Store = (*Summary)(nil)
}

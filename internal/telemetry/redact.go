package telemetry

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

const redacted = "***REDACTED***"

// Redactor is a slog.Handler that masks provider credentials in log output.
// Handlers derived through WithAttrs and WithGroup share the same secret set.
type Redactor struct {
	next    slog.Handler
	mu      *sync.RWMutex
	secrets map[string]struct{}
}

// NewRedactor wraps next. Values registered with Add are replaced before
// records reach it.
func NewRedactor(next slog.Handler, secrets ...string) *Redactor {
	r := &Redactor{
		next:    next,
		mu:      &sync.RWMutex{},
		secrets: make(map[string]struct{}),
	}
	for _, s := range secrets {
		r.Add(s)
	}
	return r
}

// Add registers a value to mask. Empty values are ignored.
func (r *Redactor) Add(secret string) {
	if secret == "" {
		return
	}
	r.mu.Lock()
	r.secrets[secret] = struct{}{}
	r.mu.Unlock()
}

// Scrub returns s with every registered secret masked.
func (r *Redactor) Scrub(s string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for secret := range r.secrets {
		s = strings.ReplaceAll(s, secret, redacted)
	}
	return s
}

func (r *Redactor) Enabled(ctx context.Context, level slog.Level) bool {
	return r.next.Enabled(ctx, level)
}

func (r *Redactor) Handle(ctx context.Context, rec slog.Record) error {
	r.mu.RLock()
	empty := len(r.secrets) == 0
	r.mu.RUnlock()
	if empty {
		return r.next.Handle(ctx, rec)
	}

	out := slog.NewRecord(rec.Time, rec.Level, r.Scrub(rec.Message), rec.PC)
	rec.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(r.scrubAttr(a))
		return true
	})
	return r.next.Handle(ctx, out)
}

func (r *Redactor) WithAttrs(attrs []slog.Attr) slog.Handler {
	scrubbed := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		scrubbed[i] = r.scrubAttr(a)
	}
	return &Redactor{next: r.next.WithAttrs(scrubbed), mu: r.mu, secrets: r.secrets}
}

func (r *Redactor) WithGroup(name string) slog.Handler {
	return &Redactor{next: r.next.WithGroup(name), mu: r.mu, secrets: r.secrets}
}

func (r *Redactor) scrubAttr(a slog.Attr) slog.Attr {
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return slog.String(a.Key, r.Scrub(v.String()))
	case slog.KindGroup:
		group := v.Group()
		scrubbed := make([]slog.Attr, len(group))
		for i, g := range group {
			scrubbed[i] = r.scrubAttr(g)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(scrubbed...)}
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return slog.String(a.Key, r.Scrub(err.Error()))
		}
	}
	return a
}

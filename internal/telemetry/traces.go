package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/szaher/nova/internal/ids"
)

// Span statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Span times one stage or agent call. Spans started from a context that
// already carries a span join its trace.
type Span struct {
	TraceID   string            `json:"trace_id"`
	SpanID    string            `json:"span_id"`
	ParentID  string            `json:"parent_id,omitempty"`
	Operation string            `json:"operation"`
	Start     time.Time         `json:"start"`
	Duration  time.Duration     `json:"duration"`
	Status    string            `json:"status"`
	Error     string            `json:"error,omitempty"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// SpanExporter receives finished spans.
type SpanExporter interface {
	ExportSpan(Span)
}

// SpanExporterFunc adapts a function to SpanExporter.
type SpanExporterFunc func(Span)

func (f SpanExporterFunc) ExportSpan(s Span) { f(s) }

// LogExporter emits each finished span as a debug record.
func LogExporter(logger *slog.Logger) SpanExporter {
	return SpanExporterFunc(func(s Span) {
		attrs := make([]slog.Attr, 0, 8+len(s.Tags))
		attrs = append(attrs,
			slog.String("trace_id", s.TraceID),
			slog.String("span_id", s.SpanID),
			slog.String("operation", s.Operation),
			slog.String("status", s.Status),
			slog.Duration("duration", s.Duration),
		)
		if s.ParentID != "" {
			attrs = append(attrs, slog.String("parent_id", s.ParentID))
		}
		if s.Error != "" {
			attrs = append(attrs, slog.String("error", s.Error))
		}
		for k, v := range s.Tags {
			attrs = append(attrs, slog.String(k, v))
		}
		logger.LogAttrs(context.Background(), slog.LevelDebug, "span", attrs...)
	})
}

// Tracer hands out spans and passes finished ones to its exporter.
// A nil Tracer is valid and records nothing.
type Tracer struct {
	exporter SpanExporter
}

func NewTracer(exporter SpanExporter) *Tracer {
	return &Tracer{exporter: exporter}
}

type spanKey struct{}

// StartSpan begins a span and returns a context carrying it.
func (t *Tracer) StartSpan(ctx context.Context, operation string, tags map[string]string) (context.Context, *Span) {
	span := &Span{
		SpanID:    ids.New(""),
		Operation: operation,
		Start:     time.Now(),
		Status:    StatusOK,
		Tags:      tags,
	}
	if parent, ok := ctx.Value(spanKey{}).(*Span); ok {
		span.TraceID = parent.TraceID
		span.ParentID = parent.SpanID
	} else {
		span.TraceID = ids.New("")
	}
	return context.WithValue(ctx, spanKey{}, span), span
}

// EndSpan stamps the duration and exports the span. A non-nil err marks it
// failed.
func (t *Tracer) EndSpan(span *Span, err error) {
	if span == nil {
		return
	}
	span.Duration = time.Since(span.Start)
	if err != nil {
		span.Status = StatusError
		span.Error = err.Error()
	}
	if t != nil && t.exporter != nil {
		t.exporter.ExportSpan(*span)
	}
}

// StageTags labels a stage span.
func StageTags(sessionID, iterationID, stage string) map[string]string {
	return map[string]string{
		"session_id":   sessionID,
		"iteration_id": iterationID,
		"stage":        stage,
	}
}

// AgentTags labels an agent call span.
func AgentTags(agent, role string) map[string]string {
	return map[string]string{"agent": agent, "role": role}
}

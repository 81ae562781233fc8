// Package trace carries W3C-style trace identifiers through voice triggers and
// control requests so one press can be followed across log lines.
package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Header and metadata keys used for propagation.
const (
	TraceIDKey      = "x-trace-id"
	SpanIDKey       = "x-span-id"
	ParentSpanIDKey = "x-parent-span-id"
)

type ctxKey struct{}

// Context identifies one span within a trace.
type Context struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
}

// New starts a fresh trace. The trace id is a version 4 UUID without
// dashes, so 6 of its 128 bits are fixed.
func New() Context {
	u := uuid.New()
	return Context{TraceID: hex.EncodeToString(u[:]), SpanID: newSpanID()}
}

// Child returns a new span in the same trace, parented on c.
func (c Context) Child() Context {
	return Context{TraceID: c.TraceID, SpanID: newSpanID(), ParentSpanID: c.SpanID}
}

func newSpanID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// FromContext returns the trace stored in ctx.
func FromContext(ctx context.Context) (Context, bool) {
	tc, ok := ctx.Value(ctxKey{}).(Context)
	return tc, ok
}

// WithContext stores tc in ctx.
func WithContext(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// ToMap exports c for gRPC metadata.
func (c Context) ToMap() map[string]string {
	m := map[string]string{TraceIDKey: c.TraceID, SpanIDKey: c.SpanID}
	if c.ParentSpanID != "" {
		m[ParentSpanIDKey] = c.ParentSpanID
	}
	return m
}

// FromMap continues a remote trace: the caller's span becomes our parent.
// A caller without a trace id gets a new trace.
func FromMap(m map[string]string) Context {
	if m[TraceIDKey] == "" {
		return New()
	}
	return Context{
		TraceID:      m[TraceIDKey],
		SpanID:       newSpanID(),
		ParentSpanID: m[SpanIDKey],
	}
}

// Span times one operation, such as a voice trigger or a control call.
type Span struct {
	Name  string
	Trace Context
	Start time.Time
	End   time.Time
	Err   error
	attrs []slog.Attr
}

// StartSpan opens a span as a child of the trace in ctx, or in a new trace.
func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	tc := New()
	if parent, ok := FromContext(ctx); ok && parent.TraceID != "" {
		tc = parent.Child()
	}
	return WithContext(ctx, tc), &Span{Name: name, Trace: tc, Start: time.Now()}
}

// SetAttr records a key/value logged with the span.
func (s *Span) SetAttr(key string, val any) {
	s.attrs = append(s.attrs, slog.Any(key, val))
}

// Attr returns the last value recorded for key.
func (s *Span) Attr(key string) (any, bool) {
	for i := len(s.attrs) - 1; i >= 0; i-- {
		if s.attrs[i].Key == key {
			return s.attrs[i].Value.Any(), true
		}
	}
	return nil, false
}

// Finish closes the span and logs it: debug on success, warn on err.
func (s *Span) Finish(err error) {
	s.End = time.Now()
	s.Err = err
	if err != nil {
		slog.Warn("span failed", "span", s)
		return
	}
	slog.Debug("span complete", "span", s)
}

// Duration is zero until the span is finished.
func (s *Span) Duration() time.Duration {
	if s.End.IsZero() {
		return 0
	}
	return s.End.Sub(s.Start)
}

// LogValue implements slog.LogValuer.
func (s *Span) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, 6+len(s.attrs))
	attrs = append(attrs,
		slog.String("name", s.Name),
		slog.String("trace_id", s.Trace.TraceID),
		slog.String("span_id", s.Trace.SpanID),
		slog.Duration("duration", s.Duration()),
	)
	if s.Trace.ParentSpanID != "" {
		attrs = append(attrs, slog.String("parent_span_id", s.Trace.ParentSpanID))
	}
	if s.Err != nil {
		attrs = append(attrs, slog.String("error", s.Err.Error()))
	}
	attrs = append(attrs, s.attrs...)
	return slog.GroupValue(attrs...)
}

// Logger returns the default logger annotated with the trace in ctx.
func Logger(ctx context.Context) *slog.Logger {
	tc, ok := FromContext(ctx)
	if !ok {
		return slog.Default()
	}
	if tc.ParentSpanID == "" {
		return slog.Default().With("trace_id", tc.TraceID, "span_id", tc.SpanID)
	}
	return slog.Default().With("trace_id", tc.TraceID, "span_id", tc.SpanID, "parent_span_id", tc.ParentSpanID)
}

package observability

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

type logContextKey int

const (
	requestIDKey logContextKey = iota
	jobKey
)

type jobRef struct {
	kind string
	id   int64
}

// ContextWithRequestID returns ctx carrying the HTTP request id for log records.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request id stored by ContextWithRequestID.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)

	return id, ok && id != ""
}

// ContextWithJob returns ctx carrying the River job being worked, so close-loop and
// cache-refresh logs can be traced back to their job row.
func ContextWithJob(ctx context.Context, kind string, id int64) context.Context {
	return context.WithValue(ctx, jobKey, jobRef{kind: kind, id: id})
}

// ContextHandler decorates records with what the context knows about the current unit of work:
// trace_id and span_id, request_id for API calls, job_kind and job_id for background jobs.
type ContextHandler struct {
	inner slog.Handler
}

// NewContextHandler wraps inner.
func NewContextHandler(inner slog.Handler) *ContextHandler {
	return &ContextHandler{inner: inner}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(contextAttrs(ctx)...)

	return h.inner.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{inner: h.inner.WithGroup(name)}
}

func contextAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		attrs = append(attrs, slog.String("trace_id", sc.TraceID().String()), slog.String("span_id", sc.SpanID().String()))
	}

	if id, ok := RequestIDFromContext(ctx); ok {
		attrs = append(attrs, slog.String("request_id", id))
	}

	if job, ok := ctx.Value(jobKey).(jobRef); ok {
		attrs = append(attrs, slog.String("job_kind", job.kind), slog.Int64("job_id", job.id))
	}

	return attrs
}

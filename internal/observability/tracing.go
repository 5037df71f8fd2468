package observability

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const traceIDContextKey contextKey = "trace_id"

// TraceHeader carries the request id in and out of the HTTP surface.
const TraceHeader = "X-Request-ID"

// NewTraceID returns a fresh trace id.
func NewTraceID() string {
	return uuid.NewString()
}

// WithTraceID stores a trace id in ctx. An empty id generates one.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		traceID = NewTraceID()
	}
	return context.WithValue(ctx, traceIDContextKey, traceID)
}

// GetTraceID extracts the trace ID from context
func GetTraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	traceID, _ := ctx.Value(traceIDContextKey).(string)
	return traceID
}

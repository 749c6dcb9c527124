package infrastructure

import "context"

// contextKey is a type for context keys
type contextKey string

// traceIDContextKey is the key for storing the trace ID in a context
const traceIDContextKey contextKey = "trace_id"

// WithTraceID returns a context carrying the given trace ID
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDContextKey, traceID)
}

// TraceIDFromContext extracts the trace ID from a context, if present
func TraceIDFromContext(ctx context.Context) string {
	if traceID, ok := ctx.Value(traceIDContextKey).(string); ok {
		return traceID
	}
	return ""
}

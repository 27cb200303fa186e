package contextutil

import (
	"context"

	"github.com/go-chi/chi/v5/middleware"
)

type contextKey string

const TraceIDKey contextKey = "traceID"

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// TraceIDFromContext prefers an explicit trace id and falls back to the
// request id set by the RequestID middleware.
func TraceIDFromContext(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok && traceID != "" {
		return traceID
	}
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		return reqID
	}
	return "unknown-trace-id"
}

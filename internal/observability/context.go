package observability

import (
	"context"
)

// Context keys for observability data.
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	runDateKey   contextKey = "run_date"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext retrieves the request ID from context.
// Returns empty string if not present.
func RequestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// WithRunDate adds the pipeline run date key to the context.
func WithRunDate(ctx context.Context, date string) context.Context {
	return context.WithValue(ctx, runDateKey, date)
}

// RunDateFromContext retrieves the pipeline run date from context.
// Returns empty string if not present.
func RunDateFromContext(ctx context.Context) string {
	if v := ctx.Value(runDateKey); v != nil {
		if date, ok := v.(string); ok {
			return date
		}
	}
	return ""
}

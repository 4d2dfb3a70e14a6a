package logger

import "context"

type contextKey string

const TraceIDKey contextKey = "trace_id"

// WithTraceID tags the context with the id of the API call being processed;
// audit entries written downstream pick it up.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TraceIDKey, id)
}

func GetTraceID(ctx context.Context) string {
	if id, ok := ctx.Value(TraceIDKey).(string); ok {
		return id
	}
	return ""
}

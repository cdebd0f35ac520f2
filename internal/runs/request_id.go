package runs

import "context"

type requestIDKey struct{}

// WithRequestID attaches a request ID to the context for logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil || requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// detach carries the request ID of ctx onto base, so async work outlives the
// request but keeps its correlation ID.
func detach(ctx, base context.Context) context.Context {
	requestID := requestIDFromContext(ctx)
	if requestID == "" {
		return base
	}
	return WithRequestID(base, requestID)
}

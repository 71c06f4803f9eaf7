package context

import stdctx "context"

type ctxKey int

const (
	requestIDKey ctxKey = iota
	actorIDKey
)

// WithRequestID stores the request correlation id.
func WithRequestID(ctx stdctx.Context, requestID string) stdctx.Context {
	return stdctx.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request id or an empty string.
func RequestIDFromContext(ctx stdctx.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// WithActor stores the caller identity supplied by the wallet layer.
func WithActor(ctx stdctx.Context, actorID string) stdctx.Context {
	return stdctx.WithValue(ctx, actorIDKey, actorID)
}

// ActorFromContext returns the caller identity or an empty string.
func ActorFromContext(ctx stdctx.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(actorIDKey).(string)
	return v
}

// Package ctxutil carries request-scoped identity through context.Context.
package ctxutil

import "context"

// AnonymousUser is the acting user when none was supplied.
const AnonymousUser = "anonymous"

type ctxKey int

const (
	userIDKey ctxKey = iota
	requestIDKey
)

// WithUserID returns a context carrying the acting user's id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserID returns the acting user's id, or AnonymousUser.
func UserID(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey).(string); ok && id != "" {
		return id
	}
	return AnonymousUser
}

// WithRequestID returns a context carrying the request id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID returns the request id, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

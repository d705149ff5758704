package ctxutil

import (
	"context"
	"testing"
)

func TestUserID(t *testing.T) {
	ctx := context.Background()
	if got := UserID(ctx); got != AnonymousUser {
		t.Errorf("UserID() = %q, want %q", got, AnonymousUser)
	}
	if got := UserID(WithUserID(ctx, "")); got != AnonymousUser {
		t.Errorf("empty user: UserID() = %q, want %q", got, AnonymousUser)
	}
	if got := UserID(WithUserID(ctx, "alice")); got != "alice" {
		t.Errorf("UserID() = %q, want alice", got)
	}
}

func TestRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	if got := RequestID(ctx); got != "req-1" {
		t.Errorf("RequestID() = %q", got)
	}
	if got := RequestID(context.Background()); got != "" {
		t.Errorf("RequestID() on empty context = %q", got)
	}
}

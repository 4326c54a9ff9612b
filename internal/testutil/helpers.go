package testutil

import (
	"context"
	"testing"
	"time"
)

// TestContext creates a context with timeout for tests.
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// Ptr returns a pointer to the given value (useful for optional fields).
func Ptr[T any](v T) *T {
	return &v
}

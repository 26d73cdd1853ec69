package observability

import (
	"context"

	"github.com/google/uuid"
)

// cycleIDKey is the context key for cycle IDs.
type cycleIDKey struct{}

// NewCycleID generates a new unique cycle ID.
func NewCycleID() string {
	return uuid.NewString()
}

// ContextWithCycleID adds a cycle ID to the context.
func ContextWithCycleID(ctx context.Context, cycleID string) context.Context {
	return context.WithValue(ctx, cycleIDKey{}, cycleID)
}

// CycleIDFromContext extracts the cycle ID from context.
func CycleIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(cycleIDKey{}).(string); ok {
		return id
	}
	return ""
}

// GetOrCreateCycleID gets the existing cycle ID or creates a new one.
func GetOrCreateCycleID(ctx context.Context) (context.Context, string) {
	if id := CycleIDFromContext(ctx); id != "" {
		return ctx, id
	}
	id := NewCycleID()
	return ContextWithCycleID(ctx, id), id
}

package dedup

import (
	"context"

	"github.com/worldwatch/intel-backend/internal/domain/event"
)

// Service groups and merges near-duplicate clustered events. Deduplicate
// never fails: the worst case for any input is the input itself.
type Service interface {
	// Deduplicate collapses near-duplicates in a batch. Every input event is
	// represented in the output exactly once, either standalone or merged
	// into a group primary, and output order follows the order in which
	// primaries were first encountered.
	Deduplicate(ctx context.Context, events []*event.ClusteredEvent) []*event.ClusteredEvent
	// GetStats returns the counters accumulated across calls.
	GetStats() Stats
	// ResetStats zeroes the accumulated counters and persists the reset.
	ResetStats(ctx context.Context) error
}

// Store is the durable key-value collaborator for stats persistence.
// Failures are logged and swallowed; durability degrades, availability does
// not.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value any) error
}

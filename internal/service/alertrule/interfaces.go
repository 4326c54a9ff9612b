package alertrule

import (
	"context"

	"github.com/worldwatch/intel-backend/internal/domain/event"
)

// Service stores user-defined alert rules and evaluates events against them.
type Service interface {
	// Create validates the input, assigns an id, enables the rule and
	// persists it.
	Create(ctx context.Context, input CreateInput) (*Rule, error)
	// Update merges the partial input into an existing rule and bumps
	// UpdatedAt. Returns a not-found error for an unknown id.
	Update(ctx context.Context, id string, input UpdateInput) (*Rule, error)
	// Delete removes a rule. The bool reports whether anything was removed.
	Delete(ctx context.Context, id string) (bool, error)
	// Toggle flips only the enabled flag.
	Toggle(ctx context.Context, id string, enabled bool) (*Rule, error)
	// Get returns a single rule by id.
	Get(ctx context.Context, id string) (*Rule, error)
	// List returns all rules ordered by creation time.
	List(ctx context.Context) []*Rule
	// Evaluate returns the enabled rules matching the event. It is a pure
	// read: no trigger state is recorded.
	Evaluate(ctx context.Context, ev *event.ClusteredEvent) []Match
	// RecordTrigger marks a rule as having fired: LastTriggered is set to
	// now and TriggerCount is incremented.
	RecordTrigger(ctx context.Context, ruleID string) error
	// ExportAll serializes the full rule set to JSON.
	ExportAll(ctx context.Context) ([]byte, error)
	// ImportAll deserializes a rule set, regenerating ids to avoid
	// collisions. Malformed entries are skipped; the count of imported
	// rules is returned.
	ImportAll(ctx context.Context, data []byte) (int, error)
}

// Store is the durable key-value collaborator for rule persistence.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value any) error
}

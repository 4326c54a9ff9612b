package anomaly

import (
	"context"

	"github.com/worldwatch/intel-backend/internal/domain/event"
)

// Service scores events across the seven anomaly dimensions and forecasts
// escalation. Detectors never fail: missing data means "not triggered."
type Service interface {
	// Analyze scores one event against the recent-events context (other
	// events first seen within the last hour) and stores the result.
	Analyze(ctx context.Context, ev *event.ClusteredEvent, recent []*event.ClusteredEvent) *EventAnomalies
	// PredictEscalation forecasts severity escalation from the event's prior
	// analysis. Without prior analysis the probability is 0.
	PredictEscalation(ctx context.Context, ev *event.ClusteredEvent) *EscalationPrediction
	// GetStoredAnomalies returns the last analysis for an event id.
	GetStoredAnomalies(eventID string) (*EventAnomalies, bool)
	// Baselines returns a snapshot of the rolling baselines, for inspection.
	Baselines() []Baseline
}

// Store is the durable key-value collaborator for baseline persistence.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value any) error
}

package enrichment

import (
	"context"
	"encoding/json"
	"time"

	"github.com/worldwatch/intel-backend/internal/domain/event"
	"github.com/worldwatch/intel-backend/internal/service/alertrule"
	"github.com/worldwatch/intel-backend/internal/service/anomaly"
)

// Service orchestrates the augmentation pipeline. Augment never fails: a
// broken pipeline degrades to minimal per-event records.
type Service interface {
	Augment(ctx context.Context, events []*event.ClusteredEvent) []*EnrichedEvent
	GetStats() Stats
}

// Deduplicator collapses a batch of events into unique clusters.
type Deduplicator interface {
	Deduplicate(ctx context.Context, events []*event.ClusteredEvent) []*event.ClusteredEvent
}

// RuleEvaluator matches events against the alert rule set.
type RuleEvaluator interface {
	Evaluate(ctx context.Context, ev *event.ClusteredEvent) []alertrule.Match
	RecordTrigger(ctx context.Context, ruleID string) error
}

// Analyzer scores events for anomalies and forecasts escalation.
type Analyzer interface {
	Analyze(ctx context.Context, ev *event.ClusteredEvent, recent []*event.ClusteredEvent) *anomaly.EventAnomalies
	PredictEscalation(ctx context.Context, ev *event.ClusteredEvent) *anomaly.EscalationPrediction
}

// SatelliteProvider fetches opaque satellite context for a located event.
// Implementations may be nil (feature disabled).
type SatelliteProvider interface {
	FetchContext(ctx context.Context, ev *event.ClusteredEvent) (json.RawMessage, error)
}

// Archiver persists enriched batches. Optional and best-effort.
type Archiver interface {
	SaveBatch(ctx context.Context, events []*EnrichedEvent) error
}

// Metrics records pipeline telemetry. Optional.
type Metrics interface {
	RecordBatch(eventsIn, merged int, duration time.Duration, degraded bool)
	RecordRuleTrigger(ruleName string)
	RecordAnomaly(anomalyType string)
	RecordAnomalousEvent(riskLevel string)
}

package enrichment

import (
	"encoding/json"
	"time"

	"github.com/worldwatch/intel-backend/internal/domain/event"
	"github.com/worldwatch/intel-backend/internal/service/alertrule"
	"github.com/worldwatch/intel-backend/internal/service/anomaly"
)

// Augmentation is everything the pipeline attaches to an event.
type Augmentation struct {
	TriggeredAlerts  []alertrule.Match             `json:"triggered_alerts,omitempty"`
	Anomalies        *anomaly.EventAnomalies       `json:"anomalies,omitempty"`
	Escalation       *anomaly.EscalationPrediction `json:"escalation,omitempty"`
	SatelliteContext json.RawMessage               `json:"satellite_context,omitempty"`
}

// EnrichedEvent is a deduplicated event plus its augmentation record.
type EnrichedEvent struct {
	Event        *event.ClusteredEvent `json:"event"`
	Augmentation Augmentation          `json:"augmentation"`
}

// Stats summarizes the coordinator's lifetime activity.
type Stats struct {
	BatchesProcessed int64     `json:"batches_processed"`
	EventsIn         int64     `json:"events_in"`
	EventsOut        int64     `json:"events_out"`
	AlertsTriggered  int64     `json:"alerts_triggered"`
	AnomalousEvents  int64     `json:"anomalous_events"`
	SatelliteHits    int64     `json:"satellite_hits"`
	DegradedBatches  int64     `json:"degraded_batches"`
	LastRun          time.Time `json:"last_run"`
}

// recentContextWindow bounds which other events in the batch count as recent
// context for anomaly analysis.
const recentContextWindow = time.Hour

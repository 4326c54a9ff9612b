package anomaly

import (
	"time"

	"github.com/worldwatch/intel-backend/internal/domain/event"
)

// Type enumerates the seven anomaly detectors.
type Type string

const (
	TypeVelocitySpike         Type = "velocity_spike"
	TypeGeographicConvergence Type = "geographic_convergence"
	TypeThreatEscalation      Type = "threat_escalation"
	TypeSourceConcentration   Type = "source_concentration"
	TypeTemporalAnomaly       Type = "temporal_anomaly"
	TypeSentimentShift        Type = "sentiment_shift"
	TypeClusterExplosion      Type = "cluster_explosion"
)

// RiskLevel is the four-band classification derived from the overall score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Score is one fired detector's result.
type Score struct {
	Type          Type           `json:"type"`
	Score         float64        `json:"score"`
	Likelihood    float64        `json:"likelihood"`
	BaselineValue float64        `json:"baseline_value"`
	CurrentValue  float64        `json:"current_value"`
	Deviation     float64        `json:"deviation"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// EventAnomalies is the full analysis result for one event. OverallScore is
// the mean of the fired detector scores only; it is 0 when nothing fired.
type EventAnomalies struct {
	EventID        string    `json:"event_id"`
	Timestamp      time.Time `json:"timestamp"`
	Scores         []Score   `json:"scores,omitempty"`
	OverallScore   float64   `json:"overall_score"`
	IsAnomalous    bool      `json:"is_anomalous"`
	RiskLevel      RiskLevel `json:"risk_level"`
	Interpretation string    `json:"interpretation"`
}

// EscalationPrediction is a forecast of whether an event's severity will
// increase, derived from a prior analysis of the same event.
type EscalationPrediction struct {
	EventID     string            `json:"event_id"`
	Probability float64           `json:"probability"`
	Indicators  []string          `json:"indicators,omitempty"`
	ThreatLevel event.ThreatLevel `json:"threat_level"`
}

// Baseline is the rolling statistical reference for one metric. Mean and
// StdDev stay at their seeded values until enough samples accumulate; sample
// counts only increase.
type Baseline struct {
	Metric      string    `json:"metric"`
	Mean        float64   `json:"mean"`
	StdDev      float64   `json:"std_dev"`
	Min         float64   `json:"min"`
	Max         float64   `json:"max"`
	SampleCount int64     `json:"sample_count"`
	LastUpdated time.Time `json:"last_updated"`
	WindowHours int       `json:"window_hours"`
}

// Config carries the engine's tunable thresholds.
type Config struct {
	AnomalyThreshold          float64
	ConvergenceRadiusKm       float64
	MinEventsForConvergence   int
	ThreatEscalationThreshold float64
	MinSamplesForBaseline     int
	BaselineFlushEvery        int
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		AnomalyThreshold:          0.7,
		ConvergenceRadiusKm:       100,
		MinEventsForConvergence:   3,
		ThreatEscalationThreshold: 1.5,
		MinSamplesForBaseline:     10,
		BaselineFlushEvery:        100,
	}
}

package anomaly

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/worldwatch/intel-backend/internal/domain/event"
)

// Risk bands applied to the overall score.
const (
	riskCriticalThreshold = 0.9
	riskHighThreshold     = 0.75
	riskMediumThreshold   = 0.5
)

// escalationIndicators are the detector types that feed the escalation
// forecast.
var escalationIndicators = []Type{
	TypeThreatEscalation,
	TypeVelocitySpike,
	TypeGeographicConvergence,
}

type service struct {
	cfg    Config
	store  Store
	clock  event.Clock
	logger *slog.Logger

	mu        sync.Mutex
	baselines map[string]*Baseline
	results   map[string]*EventAnomalies
}

// NewService builds the anomaly engine, restoring persisted baselines when
// available. Storage failures at load time are logged and the engine starts
// from seeded baselines.
func NewService(ctx context.Context, cfg Config, store Store, clock event.Clock, logger *slog.Logger) Service {
	if clock == nil {
		clock = event.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.AnomalyThreshold <= 0 {
		cfg = DefaultConfig()
	}

	s := &service{
		cfg:       cfg,
		store:     store,
		clock:     clock,
		logger:    logger,
		baselines: make(map[string]*Baseline),
		results:   make(map[string]*EventAnomalies),
	}
	s.loadBaselines(ctx)
	return s
}

func (s *service) Analyze(ctx context.Context, ev *event.ClusteredEvent, recent []*event.ClusteredEvent) *EventAnomalies {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Every analyzed event is one observation against the hourly velocity
	// baseline, anomalous or not.
	s.touchBaselineLocked(ctx, metricVelocityHourly)

	candidates := []*Score{
		s.detectVelocitySpike(ev, recent, now),
		s.detectGeographicConvergence(ctx, ev, recent),
		s.detectThreatEscalation(ev, recent, now),
		s.detectSourceConcentration(ev),
		s.detectTemporalAnomaly(ev, now),
		s.detectSentimentShift(ev, recent),
		s.detectClusterExplosion(ev, recent, now),
	}

	var fired []Score
	sum := 0.0
	for _, c := range candidates {
		if c == nil || c.Score <= 0 {
			continue
		}
		fired = append(fired, *c)
		sum += c.Score
	}

	overall := 0.0
	if len(fired) > 0 {
		overall = sum / float64(len(fired))
	}

	result := &EventAnomalies{
		EventID:        ev.ID,
		Timestamp:      now,
		Scores:         fired,
		OverallScore:   overall,
		IsAnomalous:    overall >= s.cfg.AnomalyThreshold,
		RiskLevel:      classifyRisk(overall),
		Interpretation: interpret(fired, classifyRisk(overall)),
	}
	s.results[ev.ID] = result

	if result.IsAnomalous {
		s.logger.InfoContext(ctx, "anomalous event detected",
			"event_id", ev.ID,
			"overall_score", overall,
			"risk_level", string(result.RiskLevel),
			"detectors_fired", len(fired),
		)
	}
	return result
}

func (s *service) PredictEscalation(_ context.Context, ev *event.ClusteredEvent) *EscalationPrediction {
	level := event.ThreatLow
	if ev.Threat != nil {
		level = ev.Threat.Level
	}

	s.mu.Lock()
	stored, ok := s.results[ev.ID]
	s.mu.Unlock()

	prediction := &EscalationPrediction{
		EventID:     ev.ID,
		Probability: 0,
		ThreatLevel: level,
	}
	if !ok {
		return prediction
	}

	var indicators []string
	for _, score := range stored.Scores {
		for _, t := range escalationIndicators {
			if score.Type == t {
				indicators = append(indicators, string(score.Type))
			}
		}
	}
	if len(indicators) == 0 {
		return prediction
	}

	prediction.Indicators = indicators
	prediction.Probability = min(1, float64(len(indicators))/float64(len(escalationIndicators))*stored.OverallScore)
	return prediction
}

func (s *service) GetStoredAnomalies(eventID string) (*EventAnomalies, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, ok := s.results[eventID]
	if !ok {
		return nil, false
	}
	out := *result
	out.Scores = append([]Score(nil), result.Scores...)
	return &out, true
}

func (s *service) Baselines() []Baseline {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Baseline, 0, len(s.baselines))
	for _, b := range s.baselines {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Metric < out[j].Metric })
	return out
}

func classifyRisk(overall float64) RiskLevel {
	switch {
	case overall >= riskCriticalThreshold:
		return RiskCritical
	case overall >= riskHighThreshold:
		return RiskHigh
	case overall >= riskMediumThreshold:
		return RiskMedium
	default:
		return RiskLow
	}
}

// interpret renders a human-readable summary from the top three fired
// detectors, strongest first.
func interpret(fired []Score, risk RiskLevel) string {
	if len(fired) == 0 {
		return "No anomalous signals detected"
	}

	top := append([]Score(nil), fired...)
	sort.SliceStable(top, func(i, j int) bool { return top[i].Score > top[j].Score })
	if len(top) > 3 {
		top = top[:3]
	}

	phrases := make([]string, 0, len(top))
	for _, score := range top {
		phrases = append(phrases, describe(score))
	}
	return fmt.Sprintf("%s risk: %s", strings.ToUpper(string(risk)), strings.Join(phrases, "; "))
}

func describe(score Score) string {
	switch score.Type {
	case TypeVelocitySpike:
		return fmt.Sprintf("reporting velocity %.1fx above baseline", safeRatio(score.CurrentValue, score.BaselineValue))
	case TypeGeographicConvergence:
		return fmt.Sprintf("%d events converging in the same region", int(score.CurrentValue))
	case TypeThreatEscalation:
		return fmt.Sprintf("threat level escalating %.1fx over recent history", score.Deviation)
	case TypeSourceConcentration:
		return fmt.Sprintf("coverage concentrated in %.0f%% of expected sources", score.CurrentValue*100)
	case TypeTemporalAnomaly:
		return "cluster updating far faster than its usual cadence"
	case TypeSentimentShift:
		return fmt.Sprintf("threat confidence shifted by %.2f against comparable events", score.Deviation)
	case TypeClusterExplosion:
		return fmt.Sprintf("event rate %.1fx the 6-hour average", score.Deviation)
	default:
		return string(score.Type)
	}
}

func safeRatio(current, baseline float64) float64 {
	if baseline <= 0 {
		return current
	}
	return current / baseline
}

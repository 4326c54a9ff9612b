package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldwatch/intel-backend/internal/domain/event"
	"github.com/worldwatch/intel-backend/internal/service/alertrule"
	"github.com/worldwatch/intel-backend/internal/service/anomaly"
	"github.com/worldwatch/intel-backend/internal/testutil"
)

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type stubDedup struct {
	fn func(events []*event.ClusteredEvent) []*event.ClusteredEvent
}

func (s *stubDedup) Deduplicate(_ context.Context, events []*event.ClusteredEvent) []*event.ClusteredEvent {
	if s.fn != nil {
		return s.fn(events)
	}
	return events
}

type stubRules struct {
	mu        sync.Mutex
	matches   map[string][]alertrule.Match
	triggered []string
}

func (s *stubRules) Evaluate(_ context.Context, ev *event.ClusteredEvent) []alertrule.Match {
	return s.matches[ev.ID]
}

func (s *stubRules) RecordTrigger(_ context.Context, ruleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.triggered = append(s.triggered, ruleID)
	return nil
}

type stubAnalyzer struct {
	mu          sync.Mutex
	recentSeen  map[string]int
	anomalousID string
}

func (s *stubAnalyzer) Analyze(_ context.Context, ev *event.ClusteredEvent, recent []*event.ClusteredEvent) *anomaly.EventAnomalies {
	s.mu.Lock()
	if s.recentSeen == nil {
		s.recentSeen = make(map[string]int)
	}
	s.recentSeen[ev.ID] = len(recent)
	s.mu.Unlock()

	result := &anomaly.EventAnomalies{EventID: ev.ID, RiskLevel: anomaly.RiskLow}
	if ev.ID == s.anomalousID {
		result.IsAnomalous = true
		result.RiskLevel = anomaly.RiskHigh
		result.OverallScore = 0.8
		result.Scores = []anomaly.Score{{Type: anomaly.TypeVelocitySpike, Score: 0.8}}
	}
	return result
}

func (s *stubAnalyzer) PredictEscalation(_ context.Context, ev *event.ClusteredEvent) *anomaly.EscalationPrediction {
	return &anomaly.EscalationPrediction{EventID: ev.ID, ThreatLevel: event.ThreatLow}
}

type stubSatellite struct {
	payload json.RawMessage
	err     error
}

func (s *stubSatellite) FetchContext(_ context.Context, _ *event.ClusteredEvent) (json.RawMessage, error) {
	return s.payload, s.err
}

type captureArchiver struct {
	mu      sync.Mutex
	batches [][]*EnrichedEvent
	err     error
}

func (a *captureArchiver) SaveBatch(_ context.Context, events []*EnrichedEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.batches = append(a.batches, events)
	return a.err
}

type captureMetrics struct {
	mu        sync.Mutex
	batches   int
	degraded  int
	triggers  []string
	anomalies []string
	risky     []string
}

func (m *captureMetrics) RecordBatch(_, _ int, _ time.Duration, degraded bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches++
	if degraded {
		m.degraded++
	}
}

func (m *captureMetrics) RecordRuleTrigger(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.triggers = append(m.triggers, name)
}

func (m *captureMetrics) RecordAnomaly(t string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.anomalies = append(m.anomalies, t)
}

func (m *captureMetrics) RecordAnomalousEvent(level string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.risky = append(m.risky, level)
}

func TestAugment_FullPipeline(t *testing.T) {
	ctx := testutil.TestContext(t)

	located := testutil.NewEvent("ev-1", baseTime).
		WithTitle("Convoy movement near border").
		WithLocation(48.0, 37.0).
		Build()
	plain := testutil.NewEvent("ev-2", baseTime.Add(10*time.Minute)).
		WithTitle("Parliament session postponed").
		Build()

	rules := &stubRules{matches: map[string][]alertrule.Match{
		"ev-1": {{RuleID: "r1", RuleName: "military movement", HighlightColor: "#f00"}},
	}}
	analyzer := &stubAnalyzer{anomalousID: "ev-1"}
	archiver := &captureArchiver{}
	m := &captureMetrics{}

	svc := NewService(
		&stubDedup{},
		rules,
		analyzer,
		&stubSatellite{payload: json.RawMessage(`{"risk":"elevated"}`)},
		archiver,
		m,
		event.NewMockClock(baseTime),
		nil,
	)

	out := svc.Augment(ctx, []*event.ClusteredEvent{located, plain})
	require.Len(t, out, 2)

	first := out[0]
	assert.Equal(t, "ev-1", first.Event.ID)
	require.Len(t, first.Augmentation.TriggeredAlerts, 1)
	assert.Equal(t, "r1", first.Augmentation.TriggeredAlerts[0].RuleID)
	require.NotNil(t, first.Augmentation.Anomalies)
	assert.True(t, first.Augmentation.Anomalies.IsAnomalous)
	require.NotNil(t, first.Augmentation.Escalation)
	assert.JSONEq(t, `{"risk":"elevated"}`, string(first.Augmentation.SatelliteContext))

	second := out[1]
	assert.Empty(t, second.Augmentation.TriggeredAlerts)
	assert.Nil(t, second.Augmentation.SatelliteContext, "unlocated events skip satellite context")

	assert.Equal(t, []string{"r1"}, rules.triggered)
	require.Len(t, archiver.batches, 1)
	assert.Len(t, archiver.batches[0], 2)

	assert.Equal(t, 1, m.batches)
	assert.Equal(t, []string{"military movement"}, m.triggers)
	assert.Equal(t, []string{string(anomaly.TypeVelocitySpike)}, m.anomalies)
	assert.Equal(t, []string{string(anomaly.RiskHigh)}, m.risky)

	stats := svc.GetStats()
	assert.Equal(t, int64(1), stats.BatchesProcessed)
	assert.Equal(t, int64(2), stats.EventsIn)
	assert.Equal(t, int64(2), stats.EventsOut)
	assert.Equal(t, int64(1), stats.AlertsTriggered)
	assert.Equal(t, int64(1), stats.AnomalousEvents)
	assert.Equal(t, int64(1), stats.SatelliteHits)
	assert.Zero(t, stats.DegradedBatches)
}

func TestAugment_PipelineFailureDegrades(t *testing.T) {
	ctx := testutil.TestContext(t)

	dedup := &stubDedup{fn: func([]*event.ClusteredEvent) []*event.ClusteredEvent {
		panic("storage exploded")
	}}
	m := &captureMetrics{}
	svc := NewService(dedup, &stubRules{}, &stubAnalyzer{}, nil, nil, m, event.NewMockClock(baseTime), nil)

	events := []*event.ClusteredEvent{
		testutil.NewEvent("a", baseTime).Build(),
		testutil.NewEvent("b", baseTime).Build(),
		testutil.NewEvent("c", baseTime).Build(),
	}
	out := svc.Augment(ctx, events)

	require.Len(t, out, 3, "batch size is preserved on failure")
	for _, e := range out {
		require.NotNil(t, e.Augmentation.Anomalies)
		assert.Equal(t, "augmentation unavailable", e.Augmentation.Anomalies.Interpretation)
		assert.Equal(t, anomaly.RiskLow, e.Augmentation.Anomalies.RiskLevel)
		assert.Empty(t, e.Augmentation.TriggeredAlerts)
	}

	assert.Equal(t, 1, m.degraded)
	stats := svc.GetStats()
	assert.Equal(t, int64(1), stats.DegradedBatches)
	assert.Equal(t, int64(3), stats.EventsOut)
}

func TestAugment_SatelliteFailureIsOmitted(t *testing.T) {
	ctx := testutil.TestContext(t)

	located := testutil.NewEvent("ev", baseTime).WithLocation(10, 10).Build()
	svc := NewService(
		&stubDedup{},
		&stubRules{},
		&stubAnalyzer{},
		&stubSatellite{err: errors.New("provider down")},
		nil,
		nil,
		event.NewMockClock(baseTime),
		nil,
	)

	out := svc.Augment(ctx, []*event.ClusteredEvent{located})
	require.Len(t, out, 1)
	assert.Nil(t, out[0].Augmentation.SatelliteContext)
	assert.Zero(t, svc.GetStats().SatelliteHits)
}

func TestAugment_RecentContextWindow(t *testing.T) {
	ctx := testutil.TestContext(t)

	analyzer := &stubAnalyzer{}
	svc := NewService(&stubDedup{}, &stubRules{}, analyzer, nil, nil, nil, event.NewMockClock(baseTime), nil)

	events := []*event.ClusteredEvent{
		testutil.NewEvent("subject", baseTime).Build(),
		testutil.NewEvent("close", baseTime.Add(30*time.Minute)).Build(),
		testutil.NewEvent("edge", baseTime.Add(time.Hour)).Build(),
		testutil.NewEvent("far", baseTime.Add(3*time.Hour)).Build(),
	}
	svc.Augment(ctx, events)

	assert.Equal(t, 2, analyzer.recentSeen["subject"], "30min and 1h neighbors are in window")
	assert.Equal(t, 2, analyzer.recentSeen["close"], "30min from subject and edge, 2.5h from far")
}

func TestAugment_StatsAccumulate(t *testing.T) {
	ctx := testutil.TestContext(t)
	svc := NewService(&stubDedup{}, &stubRules{}, &stubAnalyzer{}, nil, nil, nil, event.NewMockClock(baseTime), nil)

	svc.Augment(ctx, []*event.ClusteredEvent{testutil.NewEvent("a", baseTime).Build()})
	svc.Augment(ctx, []*event.ClusteredEvent{testutil.NewEvent("b", baseTime).Build()})

	stats := svc.GetStats()
	assert.Equal(t, int64(2), stats.BatchesProcessed)
	assert.Equal(t, int64(2), stats.EventsIn)
	assert.Equal(t, baseTime, stats.LastRun)
}

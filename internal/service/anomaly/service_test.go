package anomaly

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldwatch/intel-backend/internal/domain/event"
	"github.com/worldwatch/intel-backend/internal/infrastructure/keystore"
	"github.com/worldwatch/intel-backend/internal/testutil"
)

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, store Store) Service {
	t.Helper()
	return NewService(testutil.TestContext(t), DefaultConfig(), store, event.NewMockClock(baseTime), nil)
}

// quietEvent builds an event that trips no detector on its own: normal
// velocity, several sources, last updated well in the past.
func quietEvent(id, title string) *event.ClusteredEvent {
	return testutil.NewEvent(id, baseTime.Add(-2*time.Hour)).
		WithTitle(title).
		WithSourceCount(4).
		WithLastUpdated(baseTime.Add(-2 * time.Hour)).
		Build()
}

func TestAnalyze_NoSignals(t *testing.T) {
	ctx := testutil.TestContext(t)
	svc := newTestService(t, nil)

	result := svc.Analyze(ctx, quietEvent("ev", "Routine diplomatic meeting concludes"), nil)

	assert.Empty(t, result.Scores)
	assert.Zero(t, result.OverallScore)
	assert.False(t, result.IsAnomalous)
	assert.Equal(t, RiskLow, result.RiskLevel)
	assert.Equal(t, "No anomalous signals detected", result.Interpretation)
}

func TestAnalyze_VelocitySpike(t *testing.T) {
	ctx := testutil.TestContext(t)
	svc := newTestService(t, nil)

	ev := quietEvent("ev", "Drone attack reported near refinery")
	ev.Velocity = event.VelocitySpike

	var recent []*event.ClusteredEvent
	for i := 0; i < 6; i++ {
		r := testutil.NewEvent(fmt.Sprintf("r%d", i), baseTime.Add(-30*time.Minute)).
			WithTitle("Drone attack reported near refinery").
			WithSourceCount(4).
			WithLastUpdated(baseTime.Add(-2 * time.Hour)).
			Build()
		recent = append(recent, r)
	}

	result := svc.Analyze(ctx, ev, recent)

	require.True(t, result.IsAnomalous)
	assert.Equal(t, RiskCritical, result.RiskLevel)
	assert.True(t, hasScore(result, TypeVelocitySpike))
	assert.True(t, hasScore(result, TypeClusterExplosion))
	assert.True(t, strings.HasPrefix(result.Interpretation, "CRITICAL risk:"))
}

func TestAnalyze_ElevatedVelocityMediumBand(t *testing.T) {
	ctx := testutil.TestContext(t)
	svc := newTestService(t, nil)

	ev := quietEvent("ev", "Currency slides after policy reversal")
	ev.Velocity = event.VelocityElevated

	var recent []*event.ClusteredEvent
	// Five near-identical stories inside the velocity window.
	for i := 0; i < 5; i++ {
		recent = append(recent, testutil.NewEvent(fmt.Sprintf("s%d", i), baseTime.Add(-20*time.Minute)).
			WithTitle("Currency slides after policy reversal").
			Build())
	}
	// Enough unrelated background over six hours to keep the hourly rate from
	// reading as an explosion.
	for i := 0; i < 12; i++ {
		recent = append(recent, testutil.NewEvent(fmt.Sprintf("bg%d", i), baseTime.Add(-3*time.Hour)).
			WithTitle(fmt.Sprintf("Unrelated background item number %d about farming", i)).
			Build())
	}

	result := svc.Analyze(ctx, ev, recent)

	require.Len(t, result.Scores, 1)
	assert.Equal(t, TypeVelocitySpike, result.Scores[0].Type)
	assert.InDelta(t, 0.6, result.OverallScore, 1e-9)
	assert.False(t, result.IsAnomalous, "0.6 sits under the 0.7 threshold")
	assert.Equal(t, RiskMedium, result.RiskLevel)
}

func TestAnalyze_GeographicConvergence(t *testing.T) {
	ctx := testutil.TestContext(t)
	svc := newTestService(t, nil)

	ev := quietEvent("ev", "Armored column sighted near crossing")
	ev.Location = &event.Location{Latitude: 50.45, Longitude: 30.52}

	var recent []*event.ClusteredEvent
	for i := 0; i < 3; i++ {
		r := quietEvent(fmt.Sprintf("nearby%d", i), fmt.Sprintf("Distinct report %d from the same region entirely", i))
		r.Location = &event.Location{Latitude: 50.5 + float64(i)*0.1, Longitude: 30.5}
		recent = append(recent, r)
	}

	result := svc.Analyze(ctx, ev, recent)

	require.Len(t, result.Scores, 1)
	score := result.Scores[0]
	assert.Equal(t, TypeGeographicConvergence, score.Type)
	assert.InDelta(t, 4, score.CurrentValue, 1e-9, "three neighbors plus self")
	assert.InDelta(t, 0.8, score.Score, 1e-9)
	assert.True(t, result.IsAnomalous)
	assert.Equal(t, RiskHigh, result.RiskLevel)
}

func TestAnalyze_ConvergenceNeedsMinimumEvents(t *testing.T) {
	ctx := testutil.TestContext(t)
	svc := newTestService(t, nil)

	ev := quietEvent("ev", "Single located report")
	ev.Location = &event.Location{Latitude: 10, Longitude: 10}

	neighbor := quietEvent("n", "Completely different located story nearby")
	neighbor.Location = &event.Location{Latitude: 10.1, Longitude: 10}

	result := svc.Analyze(ctx, ev, []*event.ClusteredEvent{neighbor})
	assert.False(t, hasScore(result, TypeGeographicConvergence), "two events are below the minimum of three")
}

func TestAnalyze_ThreatEscalation(t *testing.T) {
	ctx := testutil.TestContext(t)
	svc := newTestService(t, nil)

	ev := quietEvent("ev", "Border shelling intensifies overnight")
	ev.Threat = &event.ThreatAssessment{Level: event.ThreatCritical, Confidence: 0.5}

	var recent []*event.ClusteredEvent
	for i := 0; i < 2; i++ {
		r := quietEvent(fmt.Sprintf("past%d", i), "Border shelling intensifies overnight")
		r.FirstSeen = baseTime.Add(-5 * time.Hour)
		r.Threat = &event.ThreatAssessment{Level: event.ThreatLow, Confidence: 0.5}
		recent = append(recent, r)
	}

	result := svc.Analyze(ctx, ev, recent)

	require.Len(t, result.Scores, 1)
	score := result.Scores[0]
	assert.Equal(t, TypeThreatEscalation, score.Type)
	// Critical (5) over an average of low (2): ratio 2.5, score (2.5-1)/2.
	assert.InDelta(t, 0.75, score.Score, 1e-9)
	assert.Equal(t, RiskHigh, result.RiskLevel)
}

func TestAnalyze_ThreatEscalationNeedsHistory(t *testing.T) {
	ctx := testutil.TestContext(t)
	svc := newTestService(t, nil)

	ev := quietEvent("ev", "Isolated critical report")
	ev.Threat = &event.ThreatAssessment{Level: event.ThreatCritical, Confidence: 0.9}

	result := svc.Analyze(ctx, ev, nil)
	assert.False(t, hasScore(result, TypeThreatEscalation), "fewer than two comparable events never fires")
}

func TestAnalyze_SentimentShift(t *testing.T) {
	ctx := testutil.TestContext(t)
	svc := newTestService(t, nil)

	ev := quietEvent("ev", "Ceasefire negotiations stall at summit")
	ev.Threat = &event.ThreatAssessment{Level: event.ThreatMedium, Confidence: 0.9}

	var recent []*event.ClusteredEvent
	for i := 0; i < 2; i++ {
		r := quietEvent(fmt.Sprintf("c%d", i), "Ceasefire negotiations stall at summit")
		r.Threat = &event.ThreatAssessment{Level: event.ThreatMedium, Confidence: 0.2}
		recent = append(recent, r)
	}

	result := svc.Analyze(ctx, ev, recent)

	require.Len(t, result.Scores, 1)
	score := result.Scores[0]
	assert.Equal(t, TypeSentimentShift, score.Type)
	assert.InDelta(t, 0.7, score.Score, 1e-9)
	assert.True(t, result.IsAnomalous)
	assert.Equal(t, RiskMedium, result.RiskLevel)
}

func TestAnalyze_TemporalAnomaly(t *testing.T) {
	ctx := testutil.TestContext(t)
	svc := newTestService(t, nil)

	ev := quietEvent("ev", "Cluster refreshing unusually fast")
	ev.LastUpdated = baseTime.Add(-5 * time.Minute)

	result := svc.Analyze(ctx, ev, nil)

	require.Len(t, result.Scores, 1)
	assert.Equal(t, TypeTemporalAnomaly, result.Scores[0].Type)
	assert.InDelta(t, 1.0, result.Scores[0].Score, 1e-9)
	assert.Equal(t, RiskCritical, result.RiskLevel)
}

func TestAnalyze_SourceConcentration(t *testing.T) {
	ctx := testutil.TestContext(t)
	svc := newTestService(t, nil)

	t.Run("single-source coverage fires", func(t *testing.T) {
		ev := quietEvent("ev", "Unverified report from lone outlet")
		ev.SourceCount = 1

		result := svc.Analyze(ctx, ev, nil)
		require.Len(t, result.Scores, 1)
		score := result.Scores[0]
		assert.Equal(t, TypeSourceConcentration, score.Type)
		assert.InDelta(t, 0.5, score.Score, 1e-9)
		assert.Equal(t, RiskMedium, result.RiskLevel)
		assert.False(t, result.IsAnomalous)
	})

	t.Run("broad coverage stays quiet", func(t *testing.T) {
		ev := quietEvent("ev2", "Widely corroborated report")
		ev.SourceCount = 10

		result := svc.Analyze(ctx, ev, nil)
		assert.False(t, hasScore(result, TypeSourceConcentration))
	})
}

func TestPredictEscalation(t *testing.T) {
	ctx := testutil.TestContext(t)
	svc := newTestService(t, nil)

	t.Run("no prior analysis yields zero probability", func(t *testing.T) {
		ev := quietEvent("unseen", "Never analyzed")
		pred := svc.PredictEscalation(ctx, ev)
		assert.Zero(t, pred.Probability)
		assert.Empty(t, pred.Indicators)
		assert.Equal(t, event.ThreatLow, pred.ThreatLevel, "missing threat falls back to low")
	})

	t.Run("threat level passes through", func(t *testing.T) {
		ev := quietEvent("unseen2", "Never analyzed either")
		ev.Threat = &event.ThreatAssessment{Level: event.ThreatHigh, Confidence: 0.8}
		pred := svc.PredictEscalation(ctx, ev)
		assert.Equal(t, event.ThreatHigh, pred.ThreatLevel)
	})

	t.Run("fired indicators drive probability", func(t *testing.T) {
		ev := quietEvent("spiking", "Drone attack reported near refinery")
		ev.Velocity = event.VelocitySpike

		var recent []*event.ClusteredEvent
		for i := 0; i < 6; i++ {
			recent = append(recent, testutil.NewEvent(fmt.Sprintf("x%d", i), baseTime.Add(-30*time.Minute)).
				WithTitle("Drone attack reported near refinery").
				Build())
		}
		analysis := svc.Analyze(ctx, ev, recent)
		require.True(t, hasScore(analysis, TypeVelocitySpike))

		pred := svc.PredictEscalation(ctx, ev)
		assert.Contains(t, pred.Indicators, string(TypeVelocitySpike))
		assert.Greater(t, pred.Probability, 0.0)
		assert.LessOrEqual(t, pred.Probability, 1.0)
	})
}

func TestGetStoredAnomalies(t *testing.T) {
	ctx := testutil.TestContext(t)
	svc := newTestService(t, nil)

	_, ok := svc.GetStoredAnomalies("nothing")
	assert.False(t, ok)

	ev := quietEvent("stored", "Some story")
	svc.Analyze(ctx, ev, nil)

	stored, ok := svc.GetStoredAnomalies("stored")
	require.True(t, ok)
	assert.Equal(t, "stored", stored.EventID)
}

func TestBaselines_SeededAndCounted(t *testing.T) {
	ctx := testutil.TestContext(t)
	svc := newTestService(t, nil)

	svc.Analyze(ctx, quietEvent("a", "First event"), nil)
	svc.Analyze(ctx, quietEvent("b", "Second event"), nil)

	baselines := svc.Baselines()
	require.NotEmpty(t, baselines)

	var velocity *Baseline
	for i := range baselines {
		if baselines[i].Metric == "velocity_hourly" {
			velocity = &baselines[i]
		}
	}
	require.NotNil(t, velocity)
	assert.InDelta(t, 5, velocity.Mean, 1e-9, "seeded mean stays static")
	assert.InDelta(t, 1.5, velocity.StdDev, 1e-9, "stddev seeds at 30 percent of the mean")
	assert.Equal(t, int64(2), velocity.SampleCount)
}

func TestBaselines_PersistAndRestore(t *testing.T) {
	ctx := testutil.TestContext(t)
	store := keystore.NewMemoryStore()

	cfg := DefaultConfig()
	cfg.BaselineFlushEvery = 1 // flush after every velocity sample
	svc := NewService(ctx, cfg, store, event.NewMockClock(baseTime), nil)
	svc.Analyze(ctx, quietEvent("a", "Event"), nil)

	restored := NewService(ctx, cfg, store, event.NewMockClock(baseTime), nil)
	for _, b := range restored.Baselines() {
		if b.Metric == "velocity_hourly" {
			assert.Equal(t, int64(1), b.SampleCount)
			return
		}
	}
	t.Fatal("velocity_hourly baseline not restored")
}

func hasScore(result *EventAnomalies, typ Type) bool {
	for _, s := range result.Scores {
		if s.Type == typ {
			return true
		}
	}
	return false
}

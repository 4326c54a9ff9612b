package anomaly

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/worldwatch/intel-backend/internal/domain/event"
	"github.com/worldwatch/intel-backend/internal/domain/similarity"
)

// Detector-internal constants. These are engine behavior, not configuration.
const (
	// nearIdenticalTitleDistance is the edit distance under which two titles
	// are considered the same story for velocity purposes.
	nearIdenticalTitleDistance = 10
	// relatedTitleDistance is the looser cutoff used by threat escalation.
	relatedTitleDistance = 15
	// sentimentTitleSimilarity is the similarity floor for the sentiment
	// comparison population.
	sentimentTitleSimilarity = 0.7
	// sentimentShiftThreshold is the absolute confidence change that fires.
	sentimentShiftThreshold = 0.3
	// expectedUpdateInterval is the cadence a cluster is expected to refresh
	// at; updating more than 4x faster is a temporal anomaly.
	expectedUpdateInterval = time.Hour
	// concentrationThreshold fires when a single source dominates coverage.
	concentrationThreshold = 0.5
	// explosionRatio fires when the last hour runs at more than twice the
	// 6-hour average rate.
	explosionRatio = 2.0
)

// detectVelocitySpike scores bursts of near-identical reporting. The event's
// own velocity label gates the detector; the similar-event count against the
// hourly baseline sets the magnitude. Callers hold s.mu.
func (s *service) detectVelocitySpike(ev *event.ClusteredEvent, recent []*event.ClusteredEvent, now time.Time) *Score {
	severity := 0.1
	switch ev.Velocity {
	case event.VelocitySpike:
		severity = 0.95
	case event.VelocityElevated:
		severity = 0.6
	}
	if severity <= 0.5 {
		return nil
	}

	title := strings.ToLower(ev.Title)
	similarCount := 0
	for _, r := range recent {
		if now.Sub(r.FirstSeen) > time.Hour {
			continue
		}
		if similarity.Levenshtein(title, strings.ToLower(r.Title)) < nearIdenticalTitleDistance {
			similarCount++
		}
	}

	b := s.baselineLocked(metricVelocityHourly)
	if similarCount == 0 || b.Mean <= 0 {
		return nil
	}

	score := math.Min(1, severity*float64(similarCount)/b.Mean)
	return &Score{
		Type:          TypeVelocitySpike,
		Score:         score,
		Likelihood:    severity,
		BaselineValue: b.Mean,
		CurrentValue:  float64(similarCount),
		Deviation:     deviation(float64(similarCount), b),
		Metadata: map[string]any{
			"velocity_label": string(ev.Velocity),
			"similar_events": similarCount,
		},
	}
}

// detectGeographicConvergence scores clusters of recent events around the
// same point. Callers hold s.mu.
func (s *service) detectGeographicConvergence(ctx context.Context, ev *event.ClusteredEvent, recent []*event.ClusteredEvent) *Score {
	if !ev.HasLocation() {
		return nil
	}

	count := 1 // self
	for _, r := range recent {
		if !r.HasLocation() || r.ID == ev.ID {
			continue
		}
		d := similarity.Haversine(
			ev.Location.Latitude, ev.Location.Longitude,
			r.Location.Latitude, r.Location.Longitude,
		)
		if d <= s.cfg.ConvergenceRadiusKm {
			count++
		}
	}
	if count < s.cfg.MinEventsForConvergence {
		return nil
	}

	b := s.touchBaselineLocked(ctx, metricGeoConvergence)
	score := math.Min(1, float64(count)/math.Max(b.Mean*5, 5))
	return &Score{
		Type:          TypeGeographicConvergence,
		Score:         score,
		Likelihood:    score,
		BaselineValue: b.Mean,
		CurrentValue:  float64(count),
		Deviation:     deviation(float64(count), b),
		Metadata: map[string]any{
			"radius_km":    s.cfg.ConvergenceRadiusKm,
			"nearby_count": count,
		},
	}
}

// detectThreatEscalation compares the event's threat priority to the mean
// priority of similarly-titled events in the last 24h.
func (s *service) detectThreatEscalation(ev *event.ClusteredEvent, recent []*event.ClusteredEvent, now time.Time) *Score {
	if ev.Threat == nil {
		return nil
	}
	current := float64(ev.Threat.Level.Priority())

	title := strings.ToLower(ev.Title)
	var priorities []float64
	for _, r := range recent {
		if r.Threat == nil || r.ID == ev.ID {
			continue
		}
		if now.Sub(r.FirstSeen) > 24*time.Hour {
			continue
		}
		if similarity.Levenshtein(title, strings.ToLower(r.Title)) < relatedTitleDistance {
			priorities = append(priorities, float64(r.Threat.Level.Priority()))
		}
	}
	if len(priorities) < 2 {
		return nil
	}

	avgPast := mean(priorities)
	ratio := current / math.Max(avgPast, 0.5)
	if ratio <= s.cfg.ThreatEscalationThreshold {
		return nil
	}

	score := math.Min(1, (ratio-1)/2)
	return &Score{
		Type:          TypeThreatEscalation,
		Score:         score,
		Likelihood:    score,
		BaselineValue: avgPast,
		CurrentValue:  current,
		Deviation:     ratio,
		Metadata: map[string]any{
			"threat_level":     string(ev.Threat.Level),
			"escalation_ratio": ratio,
			"comparable":       len(priorities),
		},
	}
}

// detectSourceConcentration flags events dominated by a single source. The
// source model only tracks the set of top sources, so the dominant-source
// volume is approximated as one article per distinct top source.
func (s *service) detectSourceConcentration(ev *event.ClusteredEvent) *Score {
	if ev.SourceCount <= 0 || len(ev.Sources) == 0 {
		return nil
	}

	topSourceCount := 1.0
	concentration := topSourceCount / float64(ev.SourceCount)
	if concentration <= concentrationThreshold {
		return nil
	}

	return &Score{
		Type:          TypeSourceConcentration,
		Score:         concentration - concentrationThreshold,
		Likelihood:    concentration,
		BaselineValue: concentrationThreshold,
		CurrentValue:  concentration,
		Deviation:     concentration / concentrationThreshold,
		Metadata: map[string]any{
			"source_count": ev.SourceCount,
			"top_sources":  len(ev.Sources),
		},
	}
}

// detectTemporalAnomaly flags clusters refreshing much faster than the
// expected interval.
func (s *service) detectTemporalAnomaly(ev *event.ClusteredEvent, now time.Time) *Score {
	if ev.LastUpdated.IsZero() {
		return nil
	}
	elapsed := now.Sub(ev.LastUpdated)
	if elapsed <= 0 {
		elapsed = time.Second
	}
	if elapsed >= expectedUpdateInterval/4 {
		return nil
	}

	score := math.Min(1, expectedUpdateInterval.Seconds()/(elapsed.Seconds()*4))
	return &Score{
		Type:          TypeTemporalAnomaly,
		Score:         score,
		Likelihood:    score,
		BaselineValue: expectedUpdateInterval.Seconds(),
		CurrentValue:  elapsed.Seconds(),
		Deviation:     expectedUpdateInterval.Seconds() / elapsed.Seconds(),
		Metadata: map[string]any{
			"elapsed_seconds": elapsed.Seconds(),
		},
	}
}

// detectSentimentShift compares the event's threat confidence against the
// mean confidence of similarly-titled recent events.
func (s *service) detectSentimentShift(ev *event.ClusteredEvent, recent []*event.ClusteredEvent) *Score {
	if ev.Threat == nil {
		return nil
	}
	current := ev.Threat.Confidence

	var confidences []float64
	for _, r := range recent {
		if r.Threat == nil || r.ID == ev.ID {
			continue
		}
		if similarity.TitleSimilarity(ev.Title, r.Title) > sentimentTitleSimilarity {
			confidences = append(confidences, r.Threat.Confidence)
		}
	}
	if len(confidences) < 2 {
		return nil
	}

	avg := mean(confidences)
	shift := math.Abs(current - avg)
	if shift <= sentimentShiftThreshold {
		return nil
	}

	return &Score{
		Type:          TypeSentimentShift,
		Score:         math.Min(1, shift),
		Likelihood:    math.Min(1, shift),
		BaselineValue: avg,
		CurrentValue:  current,
		Deviation:     shift,
		Metadata: map[string]any{
			"confidence_shift": shift,
			"comparable":       len(confidences),
		},
	}
}

// detectClusterExplosion compares the last hour's event rate to the 6-hour
// hourly average.
func (s *service) detectClusterExplosion(ev *event.ClusteredEvent, recent []*event.ClusteredEvent, now time.Time) *Score {
	lastHour := 1 // self
	lastSixHours := 1
	for _, r := range recent {
		if r.ID == ev.ID {
			continue
		}
		age := now.Sub(r.FirstSeen)
		if age <= time.Hour {
			lastHour++
		}
		if age <= 6*time.Hour {
			lastSixHours++
		}
	}

	// A quiet cluster trivially beats its own six-hour average; demand real
	// activity in the last hour before calling it an explosion.
	if lastHour < 3 {
		return nil
	}

	avgHourly := float64(lastSixHours) / 6
	ratio := float64(lastHour) / avgHourly
	if ratio <= explosionRatio {
		return nil
	}

	return &Score{
		Type:          TypeClusterExplosion,
		Score:         math.Min(1, (ratio-1)/3),
		Likelihood:    math.Min(1, ratio/4),
		BaselineValue: avgHourly,
		CurrentValue:  float64(lastHour),
		Deviation:     ratio,
		Metadata: map[string]any{
			"events_last_hour": lastHour,
			"hourly_average":   avgHourly,
		},
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// deviation expresses how far a current value sits from a baseline, in units
// of the baseline's standard deviation.
func deviation(current float64, b *Baseline) float64 {
	if b.StdDev <= 0 {
		return 0
	}
	return (current - b.Mean) / b.StdDev
}

package anomaly

import (
	"context"
	"encoding/json"
)

const baselinesKey = "anomaly_baselines:v1"

// Metric names used by the detectors.
const (
	metricVelocityHourly = "velocity_hourly"
	metricGeoConvergence = "geo_convergence"
)

// baselineSeed defines the default statistics a baseline starts with before
// minSamplesForBaseline observations exist. StdDev is seeded at 30% of the
// mean.
type baselineSeed struct {
	mean        float64
	windowHours int
}

var baselineSeeds = map[string]baselineSeed{
	metricVelocityHourly: {mean: 5, windowHours: 1},
	metricGeoConvergence: {mean: 1, windowHours: 24},
}

var defaultSeed = baselineSeed{mean: 1, windowHours: 24}

// baselineLocked returns the named baseline, creating it lazily with seeded
// statistics. Callers hold s.mu.
func (s *service) baselineLocked(metric string) *Baseline {
	if b, ok := s.baselines[metric]; ok {
		return b
	}
	seed, ok := baselineSeeds[metric]
	if !ok {
		seed = defaultSeed
	}
	b := &Baseline{
		Metric:      metric,
		Mean:        seed.mean,
		StdDev:      seed.mean * 0.3,
		Min:         0,
		Max:         seed.mean * 2,
		WindowHours: seed.windowHours,
		LastUpdated: s.clock.Now(),
	}
	s.baselines[metric] = b
	return b
}

// touchBaselineLocked counts one observation against a metric. The seeded
// mean and stddev stay static so detector output is stable across restarts;
// only sample counts and timestamps advance. Every BaselineFlushEvery samples
// of the velocity baseline, all baselines are flushed to durable storage.
func (s *service) touchBaselineLocked(ctx context.Context, metric string) *Baseline {
	b := s.baselineLocked(metric)
	b.SampleCount++
	b.LastUpdated = s.clock.Now()

	if metric == metricVelocityHourly &&
		s.cfg.BaselineFlushEvery > 0 &&
		b.SampleCount%int64(s.cfg.BaselineFlushEvery) == 0 {
		s.persistBaselinesLocked(ctx)
	}
	return b
}

func (s *service) loadBaselines(ctx context.Context) {
	if s.store == nil {
		return
	}
	data, found, err := s.store.Get(ctx, baselinesKey)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to load anomaly baselines, reseeding", "error", err)
		return
	}
	if !found {
		return
	}
	var stored map[string]*Baseline
	if err := json.Unmarshal(data, &stored); err != nil {
		s.logger.WarnContext(ctx, "corrupt anomaly baseline snapshot, reseeding", "error", err)
		return
	}
	for metric, b := range stored {
		if b != nil && metric != "" {
			s.baselines[metric] = b
		}
	}
}

func (s *service) persistBaselinesLocked(ctx context.Context) {
	if s.store == nil {
		return
	}
	if err := s.store.Set(ctx, baselinesKey, s.baselines); err != nil {
		s.logger.WarnContext(ctx, "failed to persist anomaly baselines", "error", err)
	}
}

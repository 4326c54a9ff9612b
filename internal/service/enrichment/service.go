package enrichment

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/worldwatch/intel-backend/internal/domain/event"
	"github.com/worldwatch/intel-backend/internal/service/anomaly"
)

type service struct {
	dedup     Deduplicator
	rules     RuleEvaluator
	analyzer  Analyzer
	satellite SatelliteProvider
	archiver  Archiver
	metrics   Metrics
	clock     event.Clock
	logger    *slog.Logger
	tracer    trace.Tracer

	mu    sync.Mutex
	stats Stats
}

// NewService wires the augmentation coordinator. satellite, archiver and
// metrics are optional; the pipeline runs without them.
func NewService(
	dedup Deduplicator,
	rules RuleEvaluator,
	analyzer Analyzer,
	satellite SatelliteProvider,
	archiver Archiver,
	metrics Metrics,
	clock event.Clock,
	logger *slog.Logger,
) Service {
	if clock == nil {
		clock = event.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &service{
		dedup:     dedup,
		rules:     rules,
		analyzer:  analyzer,
		satellite: satellite,
		archiver:  archiver,
		metrics:   metrics,
		clock:     clock,
		logger:    logger,
		tracer:    otel.Tracer("enrichment"),
	}
}

func (s *service) Augment(ctx context.Context, events []*event.ClusteredEvent) []*EnrichedEvent {
	ctx, span := s.tracer.Start(ctx, "enrichment.Augment")
	defer span.End()

	start := s.clock.Now()
	enriched, degraded := s.runPipeline(ctx, events)
	duration := s.clock.Now().Sub(start)

	alerts := 0
	anomalous := 0
	satelliteHits := 0
	for _, e := range enriched {
		alerts += len(e.Augmentation.TriggeredAlerts)
		if e.Augmentation.Anomalies != nil && e.Augmentation.Anomalies.IsAnomalous {
			anomalous++
		}
		if len(e.Augmentation.SatelliteContext) > 0 {
			satelliteHits++
		}
	}

	if s.metrics != nil {
		s.metrics.RecordBatch(len(events), len(events)-len(enriched), duration, degraded)
	}

	s.mu.Lock()
	s.stats.BatchesProcessed++
	s.stats.EventsIn += int64(len(events))
	s.stats.EventsOut += int64(len(enriched))
	s.stats.AlertsTriggered += int64(alerts)
	s.stats.AnomalousEvents += int64(anomalous)
	s.stats.SatelliteHits += int64(satelliteHits)
	if degraded {
		s.stats.DegradedBatches++
	}
	s.stats.LastRun = s.clock.Now()
	s.mu.Unlock()

	if s.archiver != nil && len(enriched) > 0 {
		if err := s.archiver.SaveBatch(ctx, enriched); err != nil {
			s.logger.WarnContext(ctx, "failed to archive enriched batch", "error", err)
		}
	}

	s.logger.InfoContext(ctx, "batch augmented",
		"events_in", len(events),
		"events_out", len(enriched),
		"alerts", alerts,
		"anomalous", anomalous,
		"degraded", degraded,
		"duration_ms", duration.Milliseconds(),
	)
	return enriched
}

// runPipeline executes the full pipeline, falling back to minimal per-event
// records if any stage panics. The output always covers the whole batch.
func (s *service) runPipeline(ctx context.Context, events []*event.ClusteredEvent) (out []*EnrichedEvent, degraded bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "augmentation pipeline failed, degrading to pass-through", "panic", r)
			out = s.fallback(events)
			degraded = true
		}
	}()

	deduped := s.dedup.Deduplicate(ctx, events)
	out = make([]*EnrichedEvent, 0, len(deduped))

	satellite := s.fetchSatelliteContexts(ctx, deduped)

	for i, ev := range deduped {
		aug := Augmentation{}

		matches := s.rules.Evaluate(ctx, ev)
		for _, m := range matches {
			if err := s.rules.RecordTrigger(ctx, m.RuleID); err != nil {
				s.logger.WarnContext(ctx, "failed to record rule trigger", "rule_id", m.RuleID, "error", err)
			}
			if s.metrics != nil {
				s.metrics.RecordRuleTrigger(m.RuleName)
			}
		}
		aug.TriggeredAlerts = matches

		recent := recentContext(ev, deduped)
		aug.Anomalies = s.analyzer.Analyze(ctx, ev, recent)
		aug.Escalation = s.analyzer.PredictEscalation(ctx, ev)

		if s.metrics != nil && aug.Anomalies != nil {
			for _, score := range aug.Anomalies.Scores {
				s.metrics.RecordAnomaly(string(score.Type))
			}
			if aug.Anomalies.IsAnomalous {
				s.metrics.RecordAnomalousEvent(string(aug.Anomalies.RiskLevel))
			}
		}

		aug.SatelliteContext = satellite[i]
		out = append(out, &EnrichedEvent{Event: ev, Augmentation: aug})
	}
	return out, false
}

// fetchSatelliteContexts dispatches one fetch per located event and waits for
// all of them. Failures are logged and leave the slot nil.
func (s *service) fetchSatelliteContexts(ctx context.Context, events []*event.ClusteredEvent) []json.RawMessage {
	results := make([]json.RawMessage, len(events))
	if s.satellite == nil {
		return results
	}

	var wg sync.WaitGroup
	for i, ev := range events {
		if !ev.HasLocation() {
			continue
		}
		wg.Add(1)
		go func(i int, ev *event.ClusteredEvent) {
			defer wg.Done()
			data, err := s.satellite.FetchContext(ctx, ev)
			if err != nil {
				s.logger.WarnContext(ctx, "satellite context fetch failed", "event_id", ev.ID, "error", err)
				return
			}
			results[i] = data
		}(i, ev)
	}
	wg.Wait()
	return results
}

// fallback builds the degraded output: one minimal record per input event,
// nothing merged, nothing scored.
func (s *service) fallback(events []*event.ClusteredEvent) []*EnrichedEvent {
	now := s.clock.Now()
	out := make([]*EnrichedEvent, 0, len(events))
	for _, ev := range events {
		out = append(out, &EnrichedEvent{
			Event: ev,
			Augmentation: Augmentation{
				Anomalies: &anomaly.EventAnomalies{
					EventID:        ev.ID,
					Timestamp:      now,
					RiskLevel:      anomaly.RiskLow,
					Interpretation: "augmentation unavailable",
				},
			},
		})
	}
	return out
}

func (s *service) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// recentContext picks the other events in the batch first seen within the
// context window of the subject event.
func recentContext(subject *event.ClusteredEvent, all []*event.ClusteredEvent) []*event.ClusteredEvent {
	var recent []*event.ClusteredEvent
	for _, other := range all {
		if other.ID == subject.ID {
			continue
		}
		gap := subject.FirstSeen.Sub(other.FirstSeen)
		if gap < 0 {
			gap = -gap
		}
		if gap <= recentContextWindow {
			recent = append(recent, other)
		}
	}
	return recent
}

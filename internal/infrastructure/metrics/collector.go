// Package metrics exposes the pipeline's Prometheus instrumentation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector groups the counters and histograms observed by the event
// intelligence pipeline.
type Collector struct {
	eventsProcessed  prometheus.Counter
	duplicatesMerged prometheus.Counter
	augmentDuration  prometheus.Histogram
	augmentFailures  prometheus.Counter
	ruleTriggers     *prometheus.CounterVec
	anomaliesFired   *prometheus.CounterVec
	anomalousEvents  *prometheus.CounterVec
}

func NewCollector() *Collector {
	return &Collector{
		eventsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "worldwatch",
			Subsystem: "pipeline",
			Name:      "events_processed_total",
			Help:      "Total number of clustered events run through augmentation",
		}),
		duplicatesMerged: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "worldwatch",
			Subsystem: "dedup",
			Name:      "duplicates_merged_total",
			Help:      "Total number of events merged away by deduplication",
		}),
		augmentDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "worldwatch",
			Subsystem: "pipeline",
			Name:      "augment_duration_seconds",
			Help:      "Wall time of a full augmentation batch",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		augmentFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "worldwatch",
			Subsystem: "pipeline",
			Name:      "augment_failures_total",
			Help:      "Augmentation batches that degraded to pass-through results",
		}),
		ruleTriggers: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "worldwatch",
			Subsystem: "alerting",
			Name:      "rule_triggers_total",
			Help:      "Alert rule matches recorded, by rule name",
		}, []string{"rule"}),
		anomaliesFired: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "worldwatch",
			Subsystem: "anomaly",
			Name:      "detections_total",
			Help:      "Individual anomaly detections, by detector type",
		}, []string{"type"}),
		anomalousEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "worldwatch",
			Subsystem: "anomaly",
			Name:      "anomalous_events_total",
			Help:      "Events whose overall anomaly score crossed the threshold, by risk level",
		}, []string{"risk_level"}),
	}
}

func (c *Collector) RecordBatch(events, merged int, duration time.Duration, degraded bool) {
	c.eventsProcessed.Add(float64(events))
	c.duplicatesMerged.Add(float64(merged))
	c.augmentDuration.Observe(duration.Seconds())
	if degraded {
		c.augmentFailures.Inc()
	}
}

func (c *Collector) RecordRuleTrigger(ruleName string) {
	c.ruleTriggers.WithLabelValues(ruleName).Inc()
}

func (c *Collector) RecordAnomaly(anomalyType string) {
	c.anomaliesFired.WithLabelValues(anomalyType).Inc()
}

func (c *Collector) RecordAnomalousEvent(riskLevel string) {
	c.anomalousEvents.WithLabelValues(riskLevel).Inc()
}

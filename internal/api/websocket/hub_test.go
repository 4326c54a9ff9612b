package websocket

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/worldwatch/intel-backend/internal/service/alertrule"
	"github.com/worldwatch/intel-backend/internal/service/anomaly"
	"github.com/worldwatch/intel-backend/internal/service/enrichment"
	"github.com/worldwatch/intel-backend/internal/testutil"
)

func enrichedEvent(risk anomaly.RiskLevel, anomalous bool, alerts int) *enrichment.EnrichedEvent {
	ev := &enrichment.EnrichedEvent{
		Event: testutil.NewEvent("ev", time.Now()).Build(),
	}
	ev.Augmentation.Anomalies = &anomaly.EventAnomalies{
		EventID:     "ev",
		RiskLevel:   risk,
		IsAnomalous: anomalous,
	}
	for i := 0; i < alerts; i++ {
		ev.Augmentation.TriggeredAlerts = append(ev.Augmentation.TriggeredAlerts,
			alertrule.Match{RuleID: "r", RuleName: "rule"})
	}
	return ev
}

func TestClientWantsEvent(t *testing.T) {
	tests := []struct {
		name    string
		filters EventFilters
		ev      *enrichment.EnrichedEvent
		want    bool
	}{
		{"no filters pass everything", EventFilters{}, enrichedEvent(anomaly.RiskLow, false, 0), true},
		{"anomalous only rejects quiet events", EventFilters{AnomalousOnly: true}, enrichedEvent(anomaly.RiskLow, false, 0), false},
		{"anomalous only passes anomalous events", EventFilters{AnomalousOnly: true}, enrichedEvent(anomaly.RiskHigh, true, 0), true},
		{"alerts only rejects unalerted events", EventFilters{AlertsOnly: true}, enrichedEvent(anomaly.RiskLow, false, 0), false},
		{"alerts only passes alerted events", EventFilters{AlertsOnly: true}, enrichedEvent(anomaly.RiskLow, false, 2), true},
		{"risk levels filter by band", EventFilters{RiskLevels: []anomaly.RiskLevel{anomaly.RiskCritical}}, enrichedEvent(anomaly.RiskMedium, true, 0), false},
		{"risk levels pass matching band", EventFilters{RiskLevels: []anomaly.RiskLevel{anomaly.RiskMedium, anomaly.RiskHigh}}, enrichedEvent(anomaly.RiskHigh, true, 0), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewClient(nil, nil)
			client.SetFilters(tt.filters)
			assert.Equal(t, tt.want, client.wantsEvent(tt.ev))
		})
	}
}

func TestClientWantsEvent_RiskFilterNeedsAnomalies(t *testing.T) {
	client := NewClient(nil, nil)
	client.SetFilters(EventFilters{RiskLevels: []anomaly.RiskLevel{anomaly.RiskLow}})

	ev := &enrichment.EnrichedEvent{
		Event: testutil.NewEvent("ev", time.Now()).Build(),
	}
	assert.False(t, client.wantsEvent(ev), "events without analysis never pass a risk filter")
}

func TestClientFilters_ConcurrentUpdates(t *testing.T) {
	client := NewClient(nil, nil)
	ev := enrichedEvent(anomaly.RiskHigh, true, 1)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			client.SetFilters(EventFilters{AnomalousOnly: i%2 == 0})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			// The event is anomalous, so it passes under either filter state.
			assert.True(t, client.wantsEvent(ev))
		}
	}()
	wg.Wait()
}

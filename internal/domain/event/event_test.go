package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreatLevel_Priority(t *testing.T) {
	assert.Equal(t, 1, ThreatInfo.Priority())
	assert.Equal(t, 2, ThreatLow.Priority())
	assert.Equal(t, 3, ThreatMedium.Priority())
	assert.Equal(t, 4, ThreatHigh.Priority())
	assert.Equal(t, 5, ThreatCritical.Priority())
	assert.Equal(t, 1, ThreatLevel("garbage").Priority(), "unknown levels rank lowest")
}

func TestClusteredEvent_Clone(t *testing.T) {
	published := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	original := &ClusteredEvent{
		ID:          "ev-1",
		Title:       "Border incident reported",
		Source:      "Reuters",
		Sources:     []SourceRecord{{Name: "Reuters", Tier: 1}, {Name: "BBC", Tier: 1}},
		SourceCount: 2,
		Location:    &Location{Latitude: 48.0, Longitude: 37.0},
		Threat:      &ThreatAssessment{Level: ThreatHigh, Confidence: 0.8},
		AllItems:    []RawItem{{Title: "Border incident", PublishedAt: &published}},
	}

	clone := original.Clone()
	require.NotSame(t, original, clone)
	assert.Equal(t, original, clone)

	clone.Sources[0].Name = "AP"
	clone.Location.Latitude = 0
	clone.Threat.Level = ThreatLow
	clone.AllItems = append(clone.AllItems, RawItem{Title: "follow-up"})

	assert.Equal(t, "Reuters", original.Sources[0].Name)
	assert.Equal(t, 48.0, original.Location.Latitude)
	assert.Equal(t, ThreatHigh, original.Threat.Level)
	assert.Len(t, original.AllItems, 1)
}

func TestClusteredEvent_CloneNil(t *testing.T) {
	var ev *ClusteredEvent
	assert.Nil(t, ev.Clone())
	assert.False(t, ev.HasLocation())
}

func TestMockClock_Advance(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)
	assert.Equal(t, start, clock.Now())

	clock.Advance(90 * time.Minute)
	assert.Equal(t, start.Add(90*time.Minute), clock.Now())
}

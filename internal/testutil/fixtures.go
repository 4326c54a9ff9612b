package testutil

import (
	"fmt"
	"time"

	"github.com/worldwatch/intel-backend/internal/domain/event"
)

// EventBuilder assembles ClusteredEvent fixtures with sensible defaults.
type EventBuilder struct {
	ev *event.ClusteredEvent
}

// NewEvent starts a builder anchored at the given time. The defaults describe
// a single-source, unremarkable event.
func NewEvent(id string, at time.Time) *EventBuilder {
	return &EventBuilder{
		ev: &event.ClusteredEvent{
			ID:          id,
			Title:       fmt.Sprintf("Event %s", id),
			Source:      "Reuters",
			Sources:     []event.SourceRecord{{Name: "Reuters", Tier: 1}},
			SourceCount: 1,
			FirstSeen:   at,
			LastUpdated: at,
			Velocity:    event.VelocityNormal,
		},
	}
}

func (b *EventBuilder) WithTitle(title string) *EventBuilder {
	b.ev.Title = title
	return b
}

func (b *EventBuilder) WithSource(name string, tier int) *EventBuilder {
	b.ev.Source = name
	b.ev.Sources = []event.SourceRecord{{Name: name, Tier: tier}}
	return b
}

func (b *EventBuilder) WithSources(sources ...event.SourceRecord) *EventBuilder {
	b.ev.Sources = sources
	b.ev.SourceCount = len(sources)
	if len(sources) > 0 {
		b.ev.Source = sources[0].Name
	}
	return b
}

func (b *EventBuilder) WithSourceCount(n int) *EventBuilder {
	b.ev.SourceCount = n
	return b
}

func (b *EventBuilder) WithLocation(lat, lon float64) *EventBuilder {
	b.ev.Location = &event.Location{Latitude: lat, Longitude: lon}
	return b
}

func (b *EventBuilder) WithThreat(level event.ThreatLevel, category string, confidence float64) *EventBuilder {
	b.ev.Threat = &event.ThreatAssessment{Level: level, Category: category, Confidence: confidence}
	return b
}

func (b *EventBuilder) WithVelocity(v event.VelocityLevel) *EventBuilder {
	b.ev.Velocity = v
	return b
}

func (b *EventBuilder) WithFirstSeen(t time.Time) *EventBuilder {
	b.ev.FirstSeen = t
	return b
}

func (b *EventBuilder) WithLastUpdated(t time.Time) *EventBuilder {
	b.ev.LastUpdated = t
	return b
}

func (b *EventBuilder) WithItems(items ...event.RawItem) *EventBuilder {
	b.ev.AllItems = items
	return b
}

func (b *EventBuilder) Build() *event.ClusteredEvent {
	return b.ev.Clone()
}

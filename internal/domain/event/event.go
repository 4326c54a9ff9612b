package event

import (
	"time"
)

// ClusteredEvent is a news story already merged from multiple raw articles by
// the upstream clustering collaborator. The intelligence pipeline consumes
// these, removes cross-cluster near-duplicates, and layers alerting and
// anomaly results on top.
type ClusteredEvent struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Source      string         `json:"source"`
	Sources     []SourceRecord `json:"sources,omitempty"`
	SourceCount int            `json:"source_count"`
	Location    *Location      `json:"location,omitempty"`
	FirstSeen   time.Time      `json:"first_seen"`
	LastUpdated time.Time      `json:"last_updated"`

	Threat   *ThreatAssessment `json:"threat,omitempty"`
	Velocity VelocityLevel     `json:"velocity,omitempty"`

	// AllItems holds the raw source articles contributing to the cluster,
	// ordered newest first after a merge.
	AllItems []RawItem `json:"all_items,omitempty"`
}

// SourceRecord identifies one contributing news source. Lower tiers are more
// authoritative.
type SourceRecord struct {
	Name string `json:"name"`
	Tier int    `json:"tier"`
	URL  string `json:"url,omitempty"`
}

// RawItem is a single raw article inside a cluster.
type RawItem struct {
	Title       string     `json:"title"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// Location is a geographic point.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ThreatAssessment carries the upstream threat classification of an event.
type ThreatAssessment struct {
	Level      ThreatLevel `json:"level"`
	Category   string      `json:"category,omitempty"`
	Confidence float64     `json:"confidence"`
}

type ThreatLevel string

const (
	ThreatInfo     ThreatLevel = "info"
	ThreatLow      ThreatLevel = "low"
	ThreatMedium   ThreatLevel = "medium"
	ThreatHigh     ThreatLevel = "high"
	ThreatCritical ThreatLevel = "critical"
)

// Priority maps a threat level onto a 1-5 ordinal scale used by the
// escalation detector. Unknown levels rank lowest.
func (l ThreatLevel) Priority() int {
	switch l {
	case ThreatInfo:
		return 1
	case ThreatLow:
		return 2
	case ThreatMedium:
		return 3
	case ThreatHigh:
		return 4
	case ThreatCritical:
		return 5
	default:
		return 1
	}
}

// VelocityLevel classifies how fast a story is accumulating coverage.
type VelocityLevel string

const (
	VelocityNormal   VelocityLevel = "normal"
	VelocityElevated VelocityLevel = "elevated"
	VelocitySpike    VelocityLevel = "spike"
)

// HasLocation reports whether the event carries usable coordinates.
func (e *ClusteredEvent) HasLocation() bool {
	return e != nil && e.Location != nil
}

// Clone returns a copy of the event with freshly allocated slices so a merge
// never mutates the caller's batch.
func (e *ClusteredEvent) Clone() *ClusteredEvent {
	if e == nil {
		return nil
	}
	out := *e
	if e.Location != nil {
		loc := *e.Location
		out.Location = &loc
	}
	if e.Threat != nil {
		threat := *e.Threat
		out.Threat = &threat
	}
	if len(e.Sources) > 0 {
		out.Sources = append([]SourceRecord(nil), e.Sources...)
	}
	if len(e.AllItems) > 0 {
		out.AllItems = append([]RawItem(nil), e.AllItems...)
	}
	return &out
}

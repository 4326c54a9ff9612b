package dedup

import (
	"time"

	"github.com/worldwatch/intel-backend/internal/domain/event"
)

// DeduplicationScore breaks the composite pair score into its weighted parts
// and records which similarity method produced each one.
type DeduplicationScore struct {
	Title    float64           `json:"title"`
	Source   float64           `json:"source"`
	Location float64           `json:"location"`
	Time     float64           `json:"time"`
	Overall  float64           `json:"overall"`
	Methods  map[string]string `json:"methods"`
}

// DuplicatePair is one event judged a duplicate of a group's primary.
type DuplicatePair struct {
	Event *event.ClusteredEvent `json:"event"`
	Score DeduplicationScore    `json:"score"`
}

// DuplicateGroup collects one primary and its duplicates for a single pass.
// Groups are merged and discarded; they are never persisted.
type DuplicateGroup struct {
	Primary    *event.ClusteredEvent `json:"primary"`
	Duplicates []DuplicatePair       `json:"duplicates,omitempty"`
	MergedAt   time.Time             `json:"merged_at"`
	Merged     bool                  `json:"merged"`
}

// Stats accumulates across Deduplicate calls until explicitly reset.
type Stats struct {
	TotalProcessed    int       `json:"total_processed"`
	DuplicatesRemoved int       `json:"duplicates_removed"`
	LastOutputCount   int       `json:"last_output_count"`
	MergedGroups      int       `json:"merged_groups"`
	LastRun           time.Time `json:"last_run"`
}

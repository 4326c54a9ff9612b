package dedup

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/worldwatch/intel-backend/internal/domain/event"
	"github.com/worldwatch/intel-backend/internal/domain/similarity"
)

const (
	// mergeThreshold is the composite score at or above which two events
	// merge into one group.
	mergeThreshold = 0.75
	// dedupWindow is the hard cutoff: events first seen more than this far
	// apart never merge, regardless of textual similarity.
	dedupWindow = 24 * time.Hour
	// maxMergedSources caps the source list kept on a merged event. The full
	// union size is still reflected in SourceCount.
	maxMergedSources = 5

	statsKey = "dedup_stats:v1"
)

// Composite score weights. Title dominates because upstream clustering has
// already normalized titles within a cluster.
const (
	titleWeight    = 0.4
	sourceWeight   = 0.2
	locationWeight = 0.2
	timeWeight     = 0.2
)

type service struct {
	store  Store
	clock  event.Clock
	logger *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// NewService builds the deduplication service, restoring persisted stats
// when available. A nil clock defaults to the system clock.
func NewService(ctx context.Context, store Store, clock event.Clock, logger *slog.Logger) Service {
	if clock == nil {
		clock = event.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &service{
		store:  store,
		clock:  clock,
		logger: logger,
	}
	s.loadStats(ctx)
	return s
}

func (s *service) Deduplicate(ctx context.Context, events []*event.ClusteredEvent) []*event.ClusteredEvent {
	if len(events) < 2 {
		s.mu.Lock()
		s.stats.TotalProcessed += len(events)
		s.mu.Unlock()
		return events
	}

	claimed := make([]bool, len(events))
	out := make([]*event.ClusteredEvent, 0, len(events))
	mergedGroups := 0
	removed := 0

	for i := range events {
		if claimed[i] {
			continue
		}
		claimed[i] = true

		group := &DuplicateGroup{
			Primary:  events[i],
			MergedAt: s.clock.Now(),
		}
		for j := i + 1; j < len(events); j++ {
			if claimed[j] {
				continue
			}
			score := scorePair(events[i], events[j])
			if score.Overall >= mergeThreshold {
				group.Duplicates = append(group.Duplicates, DuplicatePair{
					Event: events[j],
					Score: score,
				})
				claimed[j] = true
			}
		}

		if len(group.Duplicates) == 0 {
			out = append(out, events[i])
			continue
		}
		group.Merged = true
		out = append(out, mergeGroup(group))
		mergedGroups++
		removed += len(group.Duplicates)
	}

	s.mu.Lock()
	s.stats.TotalProcessed += len(events)
	s.stats.DuplicatesRemoved += removed
	s.stats.LastOutputCount = len(out)
	s.stats.MergedGroups += mergedGroups
	s.stats.LastRun = s.clock.Now()
	snapshot := s.stats
	s.mu.Unlock()

	s.persistStats(ctx, snapshot)

	if removed > 0 {
		s.logger.InfoContext(ctx, "deduplicated event batch",
			"input", len(events),
			"output", len(out),
			"removed", removed,
			"groups", mergedGroups)
	}
	return out
}

func (s *service) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *service) ResetStats(ctx context.Context) error {
	s.mu.Lock()
	s.stats = Stats{}
	snapshot := s.stats
	s.mu.Unlock()

	s.persistStats(ctx, snapshot)
	return nil
}

// scorePair computes the composite similarity of two events. Events outside
// the dedup window score zero without further computation.
func scorePair(a, b *event.ClusteredEvent) DeduplicationScore {
	score := DeduplicationScore{
		Methods: map[string]string{
			"title":    "levenshtein",
			"source":   "jaccard",
			"location": "haversine",
			"time":     "linear_decay",
		},
	}

	gap := a.FirstSeen.Sub(b.FirstSeen)
	if gap < 0 {
		gap = -gap
	}
	if gap > dedupWindow {
		return score
	}

	score.Title = similarity.TitleSimilarity(a.Title, b.Title)
	score.Source = similarity.Jaccard(sourceNames(a), sourceNames(b))
	score.Location = similarity.LocationSimilarity(a, b)
	score.Time = 1 - math.Min(gap.Hours()/dedupWindow.Hours(), 1)
	score.Overall = titleWeight*score.Title +
		sourceWeight*score.Source +
		locationWeight*score.Location +
		timeWeight*score.Time
	return score
}

// mergeGroup folds a duplicate group into a single event based on the
// primary. The primary's coordinates are never overwritten; a location is
// adopted from the first located duplicate only when the primary has none.
func mergeGroup(group *DuplicateGroup) *event.ClusteredEvent {
	merged := group.Primary.Clone()

	union := make(map[string]event.SourceRecord)
	for _, rec := range merged.Sources {
		key := strings.ToLower(rec.Name)
		if _, ok := union[key]; !ok {
			union[key] = rec
		}
	}

	for _, dup := range group.Duplicates {
		merged.AllItems = append(merged.AllItems, dup.Event.AllItems...)

		for _, rec := range dup.Event.Sources {
			key := strings.ToLower(rec.Name)
			if _, ok := union[key]; !ok {
				union[key] = rec
			}
		}

		if dup.Event.LastUpdated.After(merged.LastUpdated) {
			merged.LastUpdated = dup.Event.LastUpdated
		}
		if merged.Location == nil && dup.Event.HasLocation() {
			loc := *dup.Event.Location
			merged.Location = &loc
		}
	}

	// Newest first; items without a publish date sort last.
	sort.SliceStable(merged.AllItems, func(i, j int) bool {
		pi := merged.AllItems[i].PublishedAt
		pj := merged.AllItems[j].PublishedAt
		switch {
		case pi == nil:
			return false
		case pj == nil:
			return true
		default:
			return pi.After(*pj)
		}
	})

	sources := make([]event.SourceRecord, 0, len(union))
	for _, rec := range union {
		sources = append(sources, rec)
	}
	sort.SliceStable(sources, func(i, j int) bool {
		if sources[i].Tier != sources[j].Tier {
			return sources[i].Tier < sources[j].Tier
		}
		return strings.ToLower(sources[i].Name) < strings.ToLower(sources[j].Name)
	})

	merged.SourceCount = len(sources)
	if len(sources) > maxMergedSources {
		sources = sources[:maxMergedSources]
	}
	merged.Sources = sources

	return merged
}

func sourceNames(e *event.ClusteredEvent) []string {
	if len(e.Sources) > 0 {
		names := make([]string, 0, len(e.Sources))
		for _, rec := range e.Sources {
			names = append(names, rec.Name)
		}
		return names
	}
	if e.Source != "" {
		return []string{e.Source}
	}
	return nil
}

func (s *service) loadStats(ctx context.Context) {
	if s.store == nil {
		return
	}
	data, found, err := s.store.Get(ctx, statsKey)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to load dedup stats, starting fresh", "error", err)
		return
	}
	if !found {
		return
	}
	var stats Stats
	if err := json.Unmarshal(data, &stats); err != nil {
		s.logger.WarnContext(ctx, "corrupt dedup stats snapshot, starting fresh", "error", err)
		return
	}
	s.stats = stats
}

func (s *service) persistStats(ctx context.Context, snapshot Stats) {
	if s.store == nil {
		return
	}
	if err := s.store.Set(ctx, statsKey, snapshot); err != nil {
		s.logger.WarnContext(ctx, "failed to persist dedup stats", "error", err)
	}
}

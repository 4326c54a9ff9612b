// Package similarity provides the pure distance and similarity metrics used
// by deduplication and anomaly detection. All functions are stateless.
package similarity

import (
	"math"
	"strings"

	"github.com/worldwatch/intel-backend/internal/domain/event"
)

// locationCutoffKm is the distance at which two located events are considered
// entirely unrelated.
const locationCutoffKm = 50.0

// earthRadiusKm is the mean Earth radius used by the haversine formula.
const earthRadiusKm = 6371.0

// Levenshtein computes the classic edit distance between two strings using
// the full dynamic program. Comparison is case-sensitive; callers that want
// case-insensitive distance lower-case their inputs first.
func Levenshtein(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := 0; j <= len(rb); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// TitleSimilarity scores two titles in [0,1] as 1 - distance/maxLen, compared
// case-insensitively. Equal titles yield 1; two empty titles also yield 1.
func TitleSimilarity(a, b string) float64 {
	la := strings.ToLower(a)
	lb := strings.ToLower(b)
	if la == lb {
		return 1
	}
	maxLen := len([]rune(la))
	if l := len([]rune(lb)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(Levenshtein(la, lb))/float64(maxLen)
}

// Jaccard computes |intersection| / |union| over two sets of source names,
// lower-cased. Returns 0 if either set is empty.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := toSet(a)
	setB := toSet(b)

	intersection := 0
	for name := range setA {
		if _, ok := setB[name]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// Haversine returns the great-circle distance in kilometers between two
// lat/lon points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// LocationSimilarity scores the geographic proximity of two events in [0,1].
// An event without coordinates scores 0, not "unknown".
func LocationSimilarity(a, b *event.ClusteredEvent) float64 {
	if !a.HasLocation() || !b.HasLocation() {
		return 0
	}
	d := Haversine(
		a.Location.Latitude, a.Location.Longitude,
		b.Location.Latitude, b.Location.Longitude,
	)
	return math.Max(0, 1-d/locationCutoffKm)
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

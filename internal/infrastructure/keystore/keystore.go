// Package keystore provides the durable key-value store backing rule
// definitions, deduplication statistics and anomaly baselines. Values are
// stored as a JSON envelope of {data, timestamp} so collaborators can tell
// how stale a snapshot is.
package keystore

import (
	"context"
	"encoding/json"
	"time"
)

// Entry is the stored envelope for a key.
type Entry struct {
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Store is the durable key-value contract used by the intelligence services.
// Get returns found=false (not an error) for a missing key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value any) error
	Close() error
}

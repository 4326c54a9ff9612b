package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/worldwatch/intel-backend/internal/service/enrichment"
)

const archiveSchema = `
CREATE TABLE IF NOT EXISTS enriched_events (
	id              UUID PRIMARY KEY,
	event_id        TEXT NOT NULL,
	title           TEXT NOT NULL,
	risk_level      TEXT,
	is_anomalous    BOOLEAN NOT NULL DEFAULT FALSE,
	alert_count     INT NOT NULL DEFAULT 0,
	payload         JSONB NOT NULL,
	archived_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_enriched_events_event_id ON enriched_events (event_id);
CREATE INDEX IF NOT EXISTS idx_enriched_events_archived_at ON enriched_events (archived_at);
`

// ArchiveRepository persists enriched events to Postgres. All writes are
// best-effort: the pipeline never blocks on archive failures.
type ArchiveRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewArchiveRepository(pool *pgxpool.Pool, logger *zap.Logger) *ArchiveRepository {
	return &ArchiveRepository{pool: pool, logger: logger}
}

// EnsureSchema creates the archive table and indexes if missing.
func (r *ArchiveRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, archiveSchema); err != nil {
		return fmt.Errorf("failed to ensure archive schema: %w", err)
	}
	return nil
}

// SaveBatch inserts one row per enriched event in a single batch round trip.
func (r *ArchiveRepository) SaveBatch(ctx context.Context, events []*enrichment.EnrichedEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			r.logger.Warn("failed to serialize enriched event, skipping",
				zap.String("event_id", e.Event.ID),
				zap.Error(err))
			continue
		}

		riskLevel := ""
		isAnomalous := false
		if e.Augmentation.Anomalies != nil {
			riskLevel = string(e.Augmentation.Anomalies.RiskLevel)
			isAnomalous = e.Augmentation.Anomalies.IsAnomalous
		}

		batch.Queue(`
			INSERT INTO enriched_events (id, event_id, title, risk_level, is_anomalous, alert_count, payload)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			uuid.New(),
			e.Event.ID,
			e.Event.Title,
			riskLevel,
			isAnomalous,
			len(e.Augmentation.TriggeredAlerts),
			payload,
		)
	}
	if batch.Len() == 0 {
		return nil
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to archive enriched event batch: %w", err)
		}
	}
	return nil
}

// CountArchived reports the total number of archived rows, used by the
// health surface.
func (r *ArchiveRepository) CountArchived(ctx context.Context) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM enriched_events`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count archived events: %w", err)
	}
	return count, nil
}

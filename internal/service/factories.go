package service

import (
	"context"
	"log/slog"

	"github.com/worldwatch/intel-backend/internal/domain/event"
	"github.com/worldwatch/intel-backend/internal/infrastructure/keystore"
	"github.com/worldwatch/intel-backend/internal/service/alertrule"
	"github.com/worldwatch/intel-backend/internal/service/anomaly"
	"github.com/worldwatch/intel-backend/internal/service/dedup"
	"github.com/worldwatch/intel-backend/internal/service/enrichment"
)

// Services bundles the event intelligence pipeline services.
type Services struct {
	Dedup      dedup.Service
	AlertRules alertrule.Service
	Anomaly    anomaly.Service
	Enrichment enrichment.Service
}

// Dependencies carries the infrastructure collaborators the services are
// built on. Satellite, Archiver and Metrics are optional.
type Dependencies struct {
	Store     keystore.Store
	Clock     event.Clock
	Logger    *slog.Logger
	Anomaly   anomaly.Config
	Satellite enrichment.SatelliteProvider
	Archiver  enrichment.Archiver
	Metrics   enrichment.Metrics
}

// New wires the full pipeline: dedup, alert rules and anomaly detection, each
// restoring persisted state, composed under the augmentation coordinator.
func New(ctx context.Context, deps Dependencies) *Services {
	if deps.Clock == nil {
		deps.Clock = event.RealClock{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	dedupSvc := dedup.NewService(ctx, deps.Store, deps.Clock, deps.Logger)
	ruleSvc := alertrule.NewService(ctx, deps.Store, deps.Clock, deps.Logger)
	anomalySvc := anomaly.NewService(ctx, deps.Anomaly, deps.Store, deps.Clock, deps.Logger)

	enrichSvc := enrichment.NewService(
		dedupSvc,
		ruleSvc,
		anomalySvc,
		deps.Satellite,
		deps.Archiver,
		deps.Metrics,
		deps.Clock,
		deps.Logger,
	)

	return &Services{
		Dedup:      dedupSvc,
		AlertRules: ruleSvc,
		Anomaly:    anomalySvc,
		Enrichment: enrichSvc,
	}
}

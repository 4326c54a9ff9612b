package rest

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	domainerrors "github.com/worldwatch/intel-backend/internal/domain/errors"
	"github.com/worldwatch/intel-backend/internal/domain/event"
	"github.com/worldwatch/intel-backend/internal/service"
	"github.com/worldwatch/intel-backend/internal/service/alertrule"
	"github.com/worldwatch/intel-backend/internal/service/enrichment"
)

const maxBodyBytes = 8 << 20 // 8 MiB

// Handler exposes the pipeline services over HTTP. All logic stays in the
// services; handlers only decode, dispatch and encode.
type Handler struct {
	services *service.Services
	hub      BatchPublisher
	logger   *slog.Logger
}

// BatchPublisher pushes augmented batches to streaming clients. Optional.
type BatchPublisher interface {
	BroadcastBatch(events []*enrichment.EnrichedEvent)
}

func NewHandler(services *service.Services, hub BatchPublisher, logger *slog.Logger) *Handler {
	return &Handler{services: services, hub: hub, logger: logger}
}

// Routes registers all API routes on the mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/events/augment", h.augmentEvents)
	mux.HandleFunc("POST /api/v1/events/deduplicate", h.deduplicateEvents)
	mux.HandleFunc("POST /api/v1/events/escalation", h.predictEscalation)

	mux.HandleFunc("GET /api/v1/dedup/stats", h.getDedupStats)
	mux.HandleFunc("POST /api/v1/dedup/stats/reset", h.resetDedupStats)

	mux.HandleFunc("GET /api/v1/rules", h.listRules)
	mux.HandleFunc("POST /api/v1/rules", h.createRule)
	mux.HandleFunc("GET /api/v1/rules/export", h.exportRules)
	mux.HandleFunc("POST /api/v1/rules/import", h.importRules)
	mux.HandleFunc("GET /api/v1/rules/{id}", h.getRule)
	mux.HandleFunc("PUT /api/v1/rules/{id}", h.updateRule)
	mux.HandleFunc("DELETE /api/v1/rules/{id}", h.deleteRule)
	mux.HandleFunc("POST /api/v1/rules/{id}/toggle", h.toggleRule)

	mux.HandleFunc("GET /api/v1/anomalies/baselines", h.getBaselines)
	mux.HandleFunc("GET /api/v1/anomalies/{eventID}", h.getAnomalies)

	mux.HandleFunc("GET /api/v1/enrichment/stats", h.getEnrichmentStats)
}

func (h *Handler) augmentEvents(w http.ResponseWriter, r *http.Request) {
	var events []*event.ClusteredEvent
	if !h.decode(w, r, &events) {
		return
	}

	enriched := h.services.Enrichment.Augment(r.Context(), events)
	if h.hub != nil {
		h.hub.BroadcastBatch(enriched)
	}
	writeJSON(w, http.StatusOK, enriched)
}

func (h *Handler) deduplicateEvents(w http.ResponseWriter, r *http.Request) {
	var events []*event.ClusteredEvent
	if !h.decode(w, r, &events) {
		return
	}
	writeJSON(w, http.StatusOK, h.services.Dedup.Deduplicate(r.Context(), events))
}

func (h *Handler) predictEscalation(w http.ResponseWriter, r *http.Request) {
	var ev event.ClusteredEvent
	if !h.decode(w, r, &ev) {
		return
	}
	if ev.ID == "" {
		h.writeError(w, r, domainerrors.NewValidationError("MISSING_EVENT_ID", "event id is required"))
		return
	}
	writeJSON(w, http.StatusOK, h.services.Anomaly.PredictEscalation(r.Context(), &ev))
}

func (h *Handler) getDedupStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.services.Dedup.GetStats())
}

func (h *Handler) resetDedupStats(w http.ResponseWriter, r *http.Request) {
	if err := h.services.Dedup.ResetStats(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.services.Dedup.GetStats())
}

func (h *Handler) listRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.services.AlertRules.List(r.Context()))
}

func (h *Handler) createRule(w http.ResponseWriter, r *http.Request) {
	var input alertrule.CreateInput
	if !h.decode(w, r, &input) {
		return
	}
	rule, err := h.services.AlertRules.Create(r.Context(), input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (h *Handler) getRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.services.AlertRules.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (h *Handler) updateRule(w http.ResponseWriter, r *http.Request) {
	var input alertrule.UpdateInput
	if !h.decode(w, r, &input) {
		return
	}
	rule, err := h.services.AlertRules.Update(r.Context(), r.PathValue("id"), input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (h *Handler) deleteRule(w http.ResponseWriter, r *http.Request) {
	removed, err := h.services.AlertRules.Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !removed {
		h.writeError(w, r, domainerrors.NewNotFoundError("alert rule"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) toggleRule(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if !h.decode(w, r, &body) {
		return
	}
	rule, err := h.services.AlertRules.Toggle(r.Context(), r.PathValue("id"), body.Enabled)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (h *Handler) exportRules(w http.ResponseWriter, r *http.Request) {
	data, err := h.services.AlertRules.ExportAll(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="alert-rules.json"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *Handler) importRules(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, r, domainerrors.NewValidationError("INVALID_BODY", "failed to read request body").WithCause(err))
		return
	}
	imported, err := h.services.AlertRules.ImportAll(r.Context(), data)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"imported": imported})
}

func (h *Handler) getAnomalies(w http.ResponseWriter, r *http.Request) {
	result, ok := h.services.Anomaly.GetStoredAnomalies(r.PathValue("eventID"))
	if !ok {
		h.writeError(w, r, domainerrors.NewNotFoundError("event analysis"))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) getBaselines(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.services.Anomaly.Baselines())
}

func (h *Handler) getEnrichmentStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.services.Enrichment.GetStats())
}

// decode reads a JSON body into dst, writing a 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		h.writeError(w, r, domainerrors.NewValidationError("INVALID_JSON", "request body is not valid JSON").WithCause(err))
		return false
	}
	return true
}

type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *domainerrors.AppError
	if errors.As(err, &appErr) {
		if appErr.Type == domainerrors.ErrorTypeInternal {
			h.logger.ErrorContext(r.Context(), "internal error", "error", err)
		}
		writeJSON(w, appErr.StatusCode, errorBody{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: appErr.Details,
		})
		return
	}

	h.logger.ErrorContext(r.Context(), "unhandled error", "error", err)
	writeJSON(w, http.StatusInternalServerError, errorBody{
		Code:    "INTERNAL_ERROR",
		Message: "internal server error",
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

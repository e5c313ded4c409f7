package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/service"
)

// ReconciliationHandler handles sync and snapshot HTTP requests
type ReconciliationHandler struct {
	reconciliationService *service.ReconciliationService
}

// NewReconciliationHandler creates a new ReconciliationHandler
func NewReconciliationHandler(reconciliationService *service.ReconciliationService) *ReconciliationHandler {
	return &ReconciliationHandler{
		reconciliationService: reconciliationService,
	}
}

// Sync handles POST requests triggering a reconciliation cycle for a
// portfolio. The cycle runs synchronously and the committed snapshot is
// returned. A cycle already in flight for the portfolio yields 409.
//
// Endpoint: POST /api/portfolio/{uuid}/sync
func (h *ReconciliationHandler) Sync(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "uuid")

	snapshot, err := h.reconciliationService.Sync(r.Context(), portfolioID)
	if err != nil {
		respondServiceError(w, "reconciliation cycle failed", err)
		return
	}

	respondJSON(w, http.StatusOK, snapshot)
}

// Snapshot handles GET requests for a portfolio's latest committed snapshot.
//
// Endpoint: GET /api/portfolio/{uuid}/snapshot
func (h *ReconciliationHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "uuid")

	snapshot, err := h.reconciliationService.GetLatestSnapshot(portfolioID)
	if err != nil {
		respondServiceError(w, "failed to retrieve snapshot", err)
		return
	}

	respondJSON(w, http.StatusOK, snapshot)
}

// Positions handles GET requests for the portfolio's normalized
// per-connection positions, the drill-down behind the aggregated holdings.
//
// Endpoint: GET /api/portfolio/{uuid}/positions
func (h *ReconciliationHandler) Positions(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "uuid")

	positions, err := h.reconciliationService.GetPositions(portfolioID)
	if err != nil {
		respondServiceError(w, "failed to retrieve positions", err)
		return
	}

	respondJSON(w, http.StatusOK, positions)
}

package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/api/request"
	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/service"
)

// DuplicateHandler handles the duplicate review HTTP requests
type DuplicateHandler struct {
	resolutionService *service.ResolutionService
}

// NewDuplicateHandler creates a new DuplicateHandler
func NewDuplicateHandler(resolutionService *service.ResolutionService) *DuplicateHandler {
	return &DuplicateHandler{
		resolutionService: resolutionService,
	}
}

// Candidates handles GET requests for a portfolio's duplicate review queue.
//
// Endpoint: GET /api/portfolio/{uuid}/duplicates
func (h *DuplicateHandler) Candidates(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "uuid")

	candidates, err := h.resolutionService.GetCandidates(portfolioID)
	if err != nil {
		respondServiceError(w, "failed to retrieve duplicate candidates", err)
		return
	}

	respondJSON(w, http.StatusOK, candidates)
}

// Resolve handles POST requests recording a verdict on a duplicate
// candidate. The verdict takes effect in aggregation from the next cycle.
//
// Endpoint: POST /api/portfolio/{uuid}/duplicates/resolve
func (h *DuplicateHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "uuid")

	var req request.SubmitResolutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body", "detail": err.Error()})
		return
	}

	decision, err := h.resolutionService.SubmitResolution(portfolioID, req)
	if err != nil {
		respondServiceError(w, "failed to record resolution", err)
		return
	}

	respondJSON(w, http.StatusCreated, decision)
}

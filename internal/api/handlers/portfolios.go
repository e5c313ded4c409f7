package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/api/request"
	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/service"
)

// PortfolioHandler handles portfolio-related HTTP requests
type PortfolioHandler struct {
	portfolioService *service.PortfolioService
}

// NewPortfolioHandler creates a new PortfolioHandler
func NewPortfolioHandler(portfolioService *service.PortfolioService) *PortfolioHandler {
	return &PortfolioHandler{
		portfolioService: portfolioService,
	}
}

// PortfolioResponse represents one portfolio in API responses
type PortfolioResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	BaseCurrency string `json:"baseCurrency"`
	IsArchived   bool   `json:"isArchived"`
}

// Portfolios handles GET requests for the active portfolio list.
func (h *PortfolioHandler) Portfolios(w http.ResponseWriter, r *http.Request) {
	portfolios, err := h.portfolioService.GetPortfolios()
	if err != nil {
		respondServiceError(w, "failed to retrieve portfolios", err)
		return
	}

	response := make([]PortfolioResponse, len(portfolios))
	for i, p := range portfolios {
		response[i] = PortfolioResponse{
			ID:           p.ID,
			Name:         p.Name,
			Description:  p.Description,
			BaseCurrency: p.BaseCurrency,
			IsArchived:   p.IsArchived,
		}
	}

	respondJSON(w, http.StatusOK, response)
}

// Portfolio handles GET requests for a single portfolio.
func (h *PortfolioHandler) Portfolio(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "uuid")

	p, err := h.portfolioService.GetPortfolio(portfolioID)
	if err != nil {
		respondServiceError(w, "failed to retrieve portfolio", err)
		return
	}

	respondJSON(w, http.StatusOK, PortfolioResponse{
		ID:           p.ID,
		Name:         p.Name,
		Description:  p.Description,
		BaseCurrency: p.BaseCurrency,
		IsArchived:   p.IsArchived,
	})
}

// CreatePortfolio handles POST requests to create a portfolio.
func (h *PortfolioHandler) CreatePortfolio(w http.ResponseWriter, r *http.Request) {
	var req request.CreatePortfolioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body", "detail": err.Error()})
		return
	}

	p, err := h.portfolioService.CreatePortfolio(req)
	if err != nil {
		respondServiceError(w, "failed to create portfolio", err)
		return
	}

	respondJSON(w, http.StatusCreated, PortfolioResponse{
		ID:           p.ID,
		Name:         p.Name,
		Description:  p.Description,
		BaseCurrency: p.BaseCurrency,
		IsArchived:   p.IsArchived,
	})
}

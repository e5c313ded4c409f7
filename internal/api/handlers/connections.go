package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/api/request"
	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/model"
	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/service"
)

// ConnectionHandler handles broker connection HTTP requests
type ConnectionHandler struct {
	connectionService *service.ConnectionService
}

// NewConnectionHandler creates a new ConnectionHandler
func NewConnectionHandler(connectionService *service.ConnectionService) *ConnectionHandler {
	return &ConnectionHandler{
		connectionService: connectionService,
	}
}

// ConnectionResponse represents one broker connection in API responses.
// The sealed access token is never exposed.
type ConnectionResponse struct {
	ID            string     `json:"id"`
	PortfolioID   string     `json:"portfolioId"`
	Broker        string     `json:"broker"`
	Status        string     `json:"status"`
	SyncFrequency string     `json:"syncFrequency,omitempty"`
	LastSyncTime  *time.Time `json:"lastSyncTime,omitempty"`
	LastError     string     `json:"lastError,omitempty"`
	AccountNumber string     `json:"accountNumber,omitempty"`
}

func connectionResponse(c model.BrokerConnection) ConnectionResponse {
	return ConnectionResponse{
		ID:            c.ID,
		PortfolioID:   c.PortfolioID,
		Broker:        string(c.Broker),
		Status:        string(c.Status),
		SyncFrequency: c.SyncFrequency,
		LastSyncTime:  c.LastSyncTime,
		LastError:     c.LastError,
		AccountNumber: c.AccountNumber,
	}
}

// Connections handles GET requests for a portfolio's connections.
func (h *ConnectionHandler) Connections(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "uuid")

	connections, err := h.connectionService.GetConnections(portfolioID)
	if err != nil {
		respondServiceError(w, "failed to retrieve connections", err)
		return
	}

	response := make([]ConnectionResponse, len(connections))
	for i, c := range connections {
		response[i] = connectionResponse(c)
	}

	respondJSON(w, http.StatusOK, response)
}

// CreateConnection handles POST requests to link a broker connection.
func (h *ConnectionHandler) CreateConnection(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "uuid")

	var req request.CreateConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body", "detail": err.Error()})
		return
	}

	conn, err := h.connectionService.CreateConnection(portfolioID, req)
	if err != nil {
		respondServiceError(w, "failed to create connection", err)
		return
	}

	respondJSON(w, http.StatusCreated, connectionResponse(conn))
}

// UpdateConnection handles PATCH requests to change connection settings.
// Disabling happens here by setting status to disconnected.
func (h *ConnectionHandler) UpdateConnection(w http.ResponseWriter, r *http.Request) {
	connectionID := chi.URLParam(r, "uuid")

	var req request.UpdateConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body", "detail": err.Error()})
		return
	}

	conn, err := h.connectionService.UpdateConnection(connectionID, req)
	if err != nil {
		respondServiceError(w, "failed to update connection", err)
		return
	}

	respondJSON(w, http.StatusOK, connectionResponse(conn))
}

// ImportRecords handles POST requests staging records on a manual or CSV
// connection.
func (h *ConnectionHandler) ImportRecords(w http.ResponseWriter, r *http.Request) {
	connectionID := chi.URLParam(r, "uuid")

	var req request.ImportRecordsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body", "detail": err.Error()})
		return
	}

	count, err := h.connectionService.ImportRecords(connectionID, req)
	if err != nil {
		respondServiceError(w, "failed to import records", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]int{"imported": count})
}

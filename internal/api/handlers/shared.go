package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/apperrors"
)

// respondJSON sends a JSON response with the given status code
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("Failed to encode JSON: %v", err)
		}
	}
}

// respondServiceError maps service-layer sentinel errors onto HTTP statuses
// and sends a structured error body. Unknown errors become 500s.
func respondServiceError(w http.ResponseWriter, message string, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, apperrors.ErrPortfolioNotFound),
		errors.Is(err, apperrors.ErrConnectionNotFound),
		errors.Is(err, apperrors.ErrPositionNotFound),
		errors.Is(err, apperrors.ErrSnapshotNotFound),
		errors.Is(err, apperrors.ErrCandidateNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperrors.ErrSyncInProgress),
		errors.Is(err, apperrors.ErrCandidateResolved):
		status = http.StatusConflict
	case errors.Is(err, apperrors.ErrInvalidBroker),
		errors.Is(err, apperrors.ErrInvalidResolution),
		errors.Is(err, apperrors.ErrCanonicalNotInGroup),
		errors.Is(err, apperrors.ErrCanonicalRequired),
		errors.Is(err, apperrors.ErrInvalidUUID),
		errors.Is(err, apperrors.ErrEmptyID):
		status = http.StatusBadRequest
	case errors.Is(err, apperrors.ErrAllConnectionsFailed):
		status = http.StatusBadGateway
	case errors.Is(err, apperrors.ErrCycleCancelled):
		status = http.StatusServiceUnavailable
	}

	errorResponse := map[string]string{
		"error":  message,
		"detail": err.Error(),
	}
	respondJSON(w, status, errorResponse)
}

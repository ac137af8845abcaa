package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/evidentium/custodia/internal/services"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[Handlers] Encoding response failed: %v", err)
	}
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
// Validation and conflict errors carry their precise message to the client;
// everything unexpected collapses to a 500 without leaking internals.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrValidation),
		errors.Is(err, services.ErrInvalidScope),
		errors.Is(err, services.ErrInvalidRole),
		errors.Is(err, services.ErrInvalidExpiry):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, services.ErrCaseNotFound),
		errors.Is(err, services.ErrEvidenceNotFound),
		errors.Is(err, services.ErrTokenNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, services.ErrAlreadyFinalized),
		errors.Is(err, services.ErrDuplicateEvidence),
		errors.Is(err, services.ErrAlreadyRevoked),
		errors.Is(err, services.ErrUsernameTaken):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, services.ErrInvalidCredentials),
		errors.Is(err, services.ErrInvalidToken),
		errors.Is(err, services.ErrTokenRevoked),
		errors.Is(err, services.ErrTokenExpired),
		errors.Is(err, services.ErrAccessLimitReached):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, services.ErrExternalIO):
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		log.Printf("[Handlers] Internal error: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

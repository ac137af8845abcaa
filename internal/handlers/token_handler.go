package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/evidentium/custodia/internal/middleware"
	"github.com/evidentium/custodia/internal/models"
	"github.com/evidentium/custodia/internal/services"
)

// TokenHandler serves capability token management for staff.
type TokenHandler struct {
	tokenService services.TokenService
}

// NewTokenHandler creates the handler.
func NewTokenHandler(ts services.TokenService) *TokenHandler {
	return &TokenHandler{tokenService: ts}
}

type createTokenRequest struct {
	RecipientName  string   `json:"recipient_name"`
	RecipientRole  string   `json:"recipient_role"`
	Scope          string   `json:"scope"`
	ExpiresInDays  int      `json:"expires_in_days"`
	MaxAccessCount *int64   `json:"max_access_count,omitempty"`
	EvidenceIDs    []string `json:"evidence_ids,omitempty"`
}

type createTokenResponse struct {
	Token *models.CapabilityToken `json:"token"`
	// The bearer secret appears here and nowhere else, ever.
	Secret string `json:"secret"`
}

// Create handles POST /api/cases/{caseID}/tokens.
func (h *TokenHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	caseID, err := uuid.Parse(chi.URLParam(r, "caseID"))
	if err != nil {
		http.Error(w, "malformed case id", http.StatusBadRequest)
		return
	}

	var req createTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}

	var evidenceIDs []uuid.UUID
	for _, raw := range req.EvidenceIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "malformed evidence id in allow-list", http.StatusBadRequest)
			return
		}
		evidenceIDs = append(evidenceIDs, id)
	}

	token, secret, err := h.tokenService.Create(r.Context(), services.CreateTokenInput{
		CaseID:         caseID,
		CreatorID:      actor.UserID,
		RecipientName:  req.RecipientName,
		RecipientRole:  req.RecipientRole,
		Scope:          req.Scope,
		ExpiresInDays:  req.ExpiresInDays,
		MaxAccessCount: req.MaxAccessCount,
		EvidenceIDs:    evidenceIDs,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createTokenResponse{Token: token, Secret: secret})
}

// Revoke handles POST /api/tokens/{tokenID}/revoke.
func (h *TokenHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	tokenID, err := uuid.Parse(chi.URLParam(r, "tokenID"))
	if err != nil {
		http.Error(w, "malformed token id", http.StatusBadRequest)
		return
	}

	token, err := h.tokenService.Revoke(r.Context(), tokenID, actor.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, token)
}

// ListForCase handles GET /api/cases/{caseID}/tokens.
func (h *TokenHandler) ListForCase(w http.ResponseWriter, r *http.Request) {
	caseID, err := uuid.Parse(chi.URLParam(r, "caseID"))
	if err != nil {
		http.Error(w, "malformed case id", http.StatusBadRequest)
		return
	}
	includeRevoked := r.URL.Query().Get("include_revoked") == "true"

	tokens, err := h.tokenService.ListForCase(r.Context(), caseID, includeRevoked)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

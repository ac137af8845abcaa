package handlers

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/evidentium/custodia/internal/models"
	"github.com/evidentium/custodia/internal/services"
)

// PortalHandler serves external recipients presenting a capability token.
// No staff session is involved; the bearer secret is the whole credential.
type PortalHandler struct {
	tokenService    services.TokenService
	evidenceService services.EvidenceService
}

// NewPortalHandler creates the handler.
func NewPortalHandler(ts services.TokenService, es services.EvidenceService) *PortalHandler {
	return &PortalHandler{tokenService: ts, evidenceService: es}
}

// bearerSecret pulls the raw token secret from the Authorization header or
// the token query parameter. The query transport puts the secret in the
// request URL, so the router's request logger must redact it; see
// middleware.NewRequestLogger.
func bearerSecret(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.Split(auth, " ")
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
	}
	return r.URL.Query().Get("token")
}

// ListEvidence handles GET /api/portal/evidence: the case inventory the
// token covers.
func (h *PortalHandler) ListEvidence(w http.ResponseWriter, r *http.Request) {
	token, ok := h.resolve(w, r)
	if !ok {
		return
	}

	records, err := h.evidenceService.ListByCase(r.Context(), token.CaseID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	visible := make([]models.EvidenceRecord, 0, len(records))
	for _, rec := range records {
		if token.AllowsEvidence(rec.ID) {
			visible = append(visible, rec)
		}
	}

	if _, err := h.tokenService.RecordAccess(r.Context(), token, r.URL.Path); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, visible)
}

// Download handles GET /api/portal/evidence/{evidenceID}.
func (h *PortalHandler) Download(w http.ResponseWriter, r *http.Request) {
	token, ok := h.resolve(w, r)
	if !ok {
		return
	}

	evidenceID, err := uuid.Parse(chi.URLParam(r, "evidenceID"))
	if err != nil {
		http.Error(w, "malformed evidence id", http.StatusBadRequest)
		return
	}

	rec, err := h.evidenceService.Get(r.Context(), evidenceID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if rec.CaseID != token.CaseID || !token.AllowsEvidence(rec.ID) {
		http.Error(w, "evidence not covered by this token", http.StatusForbidden)
		return
	}

	// The access is counted and logged before any byte leaves the server.
	if _, err := h.tokenService.RecordAccess(r.Context(), token, r.URL.Path); err != nil {
		writeServiceError(w, err)
		return
	}

	_, rc, err := h.evidenceService.Download(r.Context(), evidenceID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer func() {
		if closeErr := rc.Close(); closeErr != nil {
			log.Printf("[PortalHandler] Closing blob reader: %v", closeErr)
		}
	}()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.Filename))
	w.Header().Set("Content-Type", rec.ContentType)
	w.Header().Set("X-Content-SHA256", *rec.SHA256)

	if _, err = io.Copy(w, rc); err != nil {
		log.Printf("[PortalHandler] Streaming evidence %s failed: %v", evidenceID, err)
	}
}

func (h *PortalHandler) resolve(w http.ResponseWriter, r *http.Request) (*models.CapabilityToken, bool) {
	secret := bearerSecret(r)
	if secret == "" {
		http.Error(w, "capability token required", http.StatusUnauthorized)
		return nil, false
	}

	token, err := h.tokenService.Resolve(r.Context(), secret)
	if err != nil {
		writeServiceError(w, err)
		return nil, false
	}
	return token, true
}

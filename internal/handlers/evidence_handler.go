package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/evidentium/custodia/internal/middleware"
	"github.com/evidentium/custodia/internal/services"
)

// EvidenceHandler serves evidence identity endpoints.
type EvidenceHandler struct {
	evidenceService services.EvidenceService
}

// NewEvidenceHandler creates the handler.
func NewEvidenceHandler(es services.EvidenceService) *EvidenceHandler {
	return &EvidenceHandler{evidenceService: es}
}

type initEvidenceRequest struct {
	Filename     string `json:"filename"`
	ContentType  string `json:"content_type"`
	DeclaredSize int64  `json:"declared_size"`
}

// Init handles POST /api/cases/{caseID}/evidence.
func (h *EvidenceHandler) Init(w http.ResponseWriter, r *http.Request) {
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

	var req initEvidenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}

	result, err := h.evidenceService.Init(r.Context(), caseID, req.Filename, req.ContentType, req.DeclaredSize, actor.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// Finalize handles POST /api/evidence/{evidenceID}/finalize.
func (h *EvidenceHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	evidenceID, err := uuid.Parse(chi.URLParam(r, "evidenceID"))
	if err != nil {
		http.Error(w, "malformed evidence id", http.StatusBadRequest)
		return
	}

	rec, err := h.evidenceService.Finalize(r.Context(), evidenceID, actor.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ListByCase handles GET /api/cases/{caseID}/evidence.
func (h *EvidenceHandler) ListByCase(w http.ResponseWriter, r *http.Request) {
	caseID, err := uuid.Parse(chi.URLParam(r, "caseID"))
	if err != nil {
		http.Error(w, "malformed case id", http.StatusBadRequest)
		return
	}

	records, err := h.evidenceService.ListByCase(r.Context(), caseID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// Download handles GET /api/evidence/{evidenceID}/download. Reached only
// through the purpose gate, which has already logged the access.
func (h *EvidenceHandler) Download(w http.ResponseWriter, r *http.Request) {
	evidenceID, err := uuid.Parse(chi.URLParam(r, "evidenceID"))
	if err != nil {
		http.Error(w, "malformed evidence id", http.StatusBadRequest)
		return
	}

	rec, rc, err := h.evidenceService.Download(r.Context(), evidenceID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer func() {
		if closeErr := rc.Close(); closeErr != nil {
			log.Printf("[EvidenceHandler] Closing blob reader: %v", closeErr)
		}
	}()

	// No Content-Length: DeclaredSize is the client's claim at init, never
	// verified against the blob, and a short declaration would truncate the
	// response. The stream defines the length.
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.Filename))
	w.Header().Set("Content-Type", rec.ContentType)
	w.Header().Set("X-Content-SHA256", *rec.SHA256)

	if _, err = io.Copy(w, rc); err != nil {
		log.Printf("[EvidenceHandler] Streaming evidence %s failed: %v", evidenceID, err)
	}
}

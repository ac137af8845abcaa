package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/evidentium/custodia/internal/audit"
	"github.com/evidentium/custodia/internal/services"
)

// ManifestHandler serves manifest export, manifest verification, audit
// replay, and the raw audit query.
type ManifestHandler struct {
	manifestService services.ManifestService
	replayService   services.ReplayService
	trail           audit.Recorder
}

// NewManifestHandler creates the handler.
func NewManifestHandler(
	ms services.ManifestService,
	rs services.ReplayService,
	trail audit.Recorder,
) *ManifestHandler {
	return &ManifestHandler{manifestService: ms, replayService: rs, trail: trail}
}

// Export handles GET /api/cases/{caseID}/manifest.
func (h *ManifestHandler) Export(w http.ResponseWriter, r *http.Request) {
	caseID, err := uuid.Parse(chi.URLParam(r, "caseID"))
	if err != nil {
		http.Error(w, "malformed case id", http.StatusBadRequest)
		return
	}

	manifest, err := h.manifestService.Export(r.Context(), caseID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, manifest)
}

// verifyManifestRequest mirrors the manifest verification contract: the
// three plaintext sections plus the claimed digest and signature. Sections
// are decoded generically so verification sees exactly what the client
// holds, not a re-typed interpretation of it.
type verifyManifestRequest struct {
	Case     any    `json:"case"`
	Evidence any    `json:"evidence"`
	Audit    any    `json:"audit"`
	SHA256   string `json:"manifest_sha256"`
	HMAC     string `json:"manifest_hmac"`
}

// Verify handles POST /api/manifest/verify. Pure over the request body; no
// storage is read. The server key never leaves the server, which is why
// clients call here instead of recomputing the HMAC themselves.
func (h *ManifestHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyManifestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}

	result := h.replayService.VerifyManifest(req.Case, req.Evidence, req.Audit, req.SHA256, req.HMAC)
	writeJSON(w, http.StatusOK, result)
}

// Replay handles GET /api/cases/{caseID}/replay.
func (h *ManifestHandler) Replay(w http.ResponseWriter, r *http.Request) {
	caseID, err := uuid.Parse(chi.URLParam(r, "caseID"))
	if err != nil {
		http.Error(w, "malformed case id", http.StatusBadRequest)
		return
	}

	report, err := h.replayService.AuditReplay(r.Context(), caseID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	// A failed replay is still a 200: the check ran and its verdict is the
	// payload. Errors are reserved for "could not check".
	writeJSON(w, http.StatusOK, report)
}

// AuditQuery handles GET /api/cases/{caseID}/audit.
func (h *ManifestHandler) AuditQuery(w http.ResponseWriter, r *http.Request) {
	caseID, err := uuid.Parse(chi.URLParam(r, "caseID"))
	if err != nil {
		http.Error(w, "malformed case id", http.StatusBadRequest)
		return
	}

	var since *time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "malformed since timestamp", http.StatusBadRequest)
			return
		}
		since = &t
	}

	events, err := h.trail.Query(r.Context(), caseID, since)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/evidentium/custodia/internal/models"
	"github.com/evidentium/custodia/internal/services"
)

// ExportHandler serves court package builds.
type ExportHandler struct {
	exportService services.ExportService
}

// NewExportHandler creates the handler.
func NewExportHandler(es services.ExportService) *ExportHandler {
	return &ExportHandler{exportService: es}
}

type exportPackageRequest struct {
	Exhibits []struct {
		EvidenceID  string `json:"evidence_id"`
		Description string `json:"description"`
	} `json:"exhibits"`
	IncludeDerivativeViewer bool `json:"include_derivative_viewer"`
}

// Build handles POST /api/cases/{caseID}/package. Streams the archive; the
// package digest and exhibit counts come back in trailing headers set
// before the body starts.
func (h *ExportHandler) Build(w http.ResponseWriter, r *http.Request) {
	caseID, err := uuid.Parse(chi.URLParam(r, "caseID"))
	if err != nil {
		http.Error(w, "malformed case id", http.StatusBadRequest)
		return
	}

	var req exportPackageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}

	exhibits := make([]models.ExhibitRequest, 0, len(req.Exhibits))
	for _, e := range req.Exhibits {
		id, err := uuid.Parse(e.EvidenceID)
		if err != nil {
			http.Error(w, "malformed evidence id in exhibit list", http.StatusBadRequest)
			return
		}
		exhibits = append(exhibits, models.ExhibitRequest{EvidenceID: id, Description: e.Description})
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("court_package_%s.zip", caseID)))
	w.Header().Set("Trailer", "X-Archive-SHA256, X-Exhibits-Written, X-Exhibits-Skipped")

	result, err := h.exportService.BuildPackage(r.Context(), caseID, services.ExportOptions{
		Exhibits:                exhibits,
		IncludeDerivativeViewer: req.IncludeDerivativeViewer,
		GeneratedAt:             time.Now(),
	}, w)
	if err != nil {
		// Nothing streamed yet only for early validation failures; once
		// archive bytes are out the connection is the failure signal.
		writeServiceError(w, err)
		return
	}

	w.Header().Set("X-Archive-SHA256", result.ArchiveSHA256)
	w.Header().Set("X-Exhibits-Written", fmt.Sprintf("%d", result.ExhibitsWritten))
	w.Header().Set("X-Exhibits-Skipped", fmt.Sprintf("%d", result.ExhibitsSkipped))
}

package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/evidentium/custodia/internal/middleware"
	"github.com/evidentium/custodia/internal/services"
)

// CaseHandler serves case management endpoints.
type CaseHandler struct {
	caseService services.CaseService
}

// NewCaseHandler creates the handler.
func NewCaseHandler(cs services.CaseService) *CaseHandler {
	return &CaseHandler{caseService: cs}
}

type createCaseRequest struct {
	CaseNumber string `json:"case_number"`
	Title      string `json:"title"`
}

// Create handles POST /api/cases.
func (h *CaseHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var req createCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}

	c, err := h.caseService.Create(r.Context(), req.CaseNumber, req.Title, actor.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// Get handles GET /api/cases/{caseID}.
func (h *CaseHandler) Get(w http.ResponseWriter, r *http.Request) {
	caseID, err := uuid.Parse(chi.URLParam(r, "caseID"))
	if err != nil {
		http.Error(w, "malformed case id", http.StatusBadRequest)
		return
	}

	c, err := h.caseService.Get(r.Context(), caseID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// List handles GET /api/cases.
func (h *CaseHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	cases, err := h.caseService.List(r.Context(), limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cases)
}

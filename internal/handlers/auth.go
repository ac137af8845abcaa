package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/evidentium/custodia/internal/services"
)

// AuthHandler serves staff registration and login.
type AuthHandler struct {
	authService services.AuthService
}

// NewAuthHandler creates the handler.
func NewAuthHandler(as services.AuthService) *AuthHandler {
	return &AuthHandler{authService: as}
}

type registerRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	Password    string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register handles POST /api/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}

	if err := h.authService.Register(r.Context(), req.Username, req.DisplayName, req.Role, req.Password); err != nil {
		writeServiceError(w, err)
		return
	}

	log.Printf("[AuthHandler] User %q registered", req.Username)
	writeJSON(w, http.StatusCreated, map[string]string{"status": "registered"})
}

// Login handles POST /api/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}

	token, err := h.authService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

package handlers

import (
	"encoding/json"
	"net/http"

	"chat-delivery/internal/auth"
	"chat-delivery/internal/models"
)

type AuthHandlers struct {
	authService *auth.Service
}

func NewAuthHandlers(authService *auth.Service) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
	}
}

func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	response, err := h.authService.Register(r.Context(), &req)
	if err != nil {
		writeServiceError(w, "Registration", err)
		return
	}

	writeJSON(w, http.StatusCreated, response)
}

func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	response, err := h.authService.Login(r.Context(), &req)
	if err != nil {
		writeServiceError(w, "Login", err)
		return
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *AuthHandlers) Profile(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(h.authService, r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

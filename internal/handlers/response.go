package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"chat-delivery/internal/auth"
	"chat-delivery/internal/models"
	"chat-delivery/pkg/logger"
)

var errUnauthorized = errors.New("unauthorized")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps a service error to a status. Internal failures are
// logged and never echoed to the client.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrConflict):
		writeError(w, http.StatusBadRequest, "already exists")
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, errUnauthorized):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, models.ErrAccessDenied):
		writeError(w, http.StatusForbidden, "not a participant in this chat")
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		logger.Error("%s error: %v", op, err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// tokenFromRequest accepts "Authorization: Bearer <jwt>" or a token query
// parameter, which browsers need for the websocket route.
func tokenFromRequest(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return "", fmt.Errorf("%w: malformed authorization header", errUnauthorized)
		}
		return strings.TrimSpace(token), nil
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}
	return "", fmt.Errorf("%w: missing token", errUnauthorized)
}

func currentUser(authService *auth.Service, r *http.Request) (*models.User, error) {
	token, err := tokenFromRequest(r)
	if err != nil {
		return nil, err
	}
	user, err := authService.GetUserFromToken(r.Context(), token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errUnauthorized, err)
	}
	user.PasswordHash = ""
	return user, nil
}

package handlers

import (
	"encoding/json"
	"net/http"

	"chat-delivery/internal/auth"
	"chat-delivery/internal/models"
	"chat-delivery/internal/services"
)

type ChatHandlers struct {
	chatService *services.ChatService
	authService *auth.Service
}

func NewChatHandlers(chatService *services.ChatService, authService *auth.Service) *ChatHandlers {
	return &ChatHandlers{
		chatService: chatService,
		authService: authService,
	}
}

func (h *ChatHandlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(h.authService, r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	users, err := h.chatService.ListUsers(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, "List users", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (h *ChatHandlers) ListChats(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(h.authService, r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	chats, err := h.chatService.ListChats(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, "List chats", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"chats": chats})
}

func (h *ChatHandlers) CreateChat(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(h.authService, r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req models.CreateChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	chat, created, err := h.chatService.CreateChat(r.Context(), user.ID, &req)
	if err != nil {
		writeServiceError(w, "Create chat", err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{"chat": chat})
}

func (h *ChatHandlers) ListMessages(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(h.authService, r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	messages, err := h.chatService.ListMessages(r.Context(), user.ID, r.PathValue("chatId"))
	if err != nil {
		writeServiceError(w, "List messages", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

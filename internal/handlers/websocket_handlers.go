package handlers

import (
	"net/http"

	"chat-delivery/internal/auth"
	"chat-delivery/internal/config"
	"chat-delivery/internal/realtime"
	ws "chat-delivery/internal/websocket"
	"chat-delivery/pkg/logger"

	"github.com/gorilla/websocket"
)

type WebSocketHandlers struct {
	authService *auth.Service
	router      *realtime.Router
	hub         *ws.Hub
	cfg         config.WebSocketConfig
	upgrader    websocket.Upgrader
}

func NewWebSocketHandlers(authService *auth.Service, router *realtime.Router, hub *ws.Hub, cfg config.WebSocketConfig, allowedOrigin string) *WebSocketHandlers {
	return &WebSocketHandlers{
		authService: authService,
		router:      router,
		hub:         hub,
		cfg:         cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowedOrigin == "*" || origin == "" || origin == allowedOrigin
			},
		},
	}
}

// HandleWebSocket authenticates the caller before upgrading. The session is
// bound to that identity, so a later join event cannot claim another user.
func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(h.authService, r)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Upgrade error: %v", err)
		return
	}

	client := ws.NewClient(h.hub, conn, h.cfg)
	if !h.hub.Add(client) {
		conn.Close()
		return
	}
	session := realtime.NewSession(client, user.ID)
	logger.Debug("Connection %s opened for user %s", client.ID(), user.ID)

	go client.WritePump()
	go client.ReadPump(h.router, session)
}

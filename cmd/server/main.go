package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"chat-delivery/internal/auth"
	"chat-delivery/internal/config"
	"chat-delivery/internal/database"
	"chat-delivery/internal/handlers"
	"chat-delivery/internal/realtime"
	"chat-delivery/internal/services"
	"chat-delivery/internal/websocket"
	"chat-delivery/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Invalid configuration: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	// Initialize database
	ctx := context.Background()
	db, err := database.NewPostgresDB(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Failed to apply schema: %v", err)
	}

	// Initialize services
	authService := auth.NewService(db, cfg.JWT)
	chatService := services.NewChatService(db)

	// Realtime core and the websocket connections feeding it
	router := realtime.NewRouter(db, realtime.WithStoreTimeout(cfg.Database.Timeout))
	hub := websocket.NewHub()
	go hub.Run()

	// Initialize handlers
	authHandlers := handlers.NewAuthHandlers(authService)
	chatHandlers := handlers.NewChatHandlers(chatService, authService)
	wsHandlers := handlers.NewWebSocketHandlers(authService, router, hub, cfg.WebSocket, cfg.Server.CORSOrigin)

	// Setup routes
	mux := http.NewServeMux()
	setupRoutes(mux, authHandlers, chatHandlers, wsHandlers)

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      corsMiddleware(cfg.Server.CORSOrigin, mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("Server started on http://localhost%s", cfg.Server.Port)
	logger.Info("WebSocket endpoint: ws://localhost%s/ws?token=<jwt>", cfg.Server.Port)
	printAPIEndpoints()

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Server shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error: %v", err)
	}
	// Sessions are released while the store is still open so offline flags land.
	if err := hub.Shutdown(shutdownCtx); err != nil {
		logger.Error("Websocket shutdown error: %v", err)
	}
	logger.Info("Server stopped")
}

func setupRoutes(mux *http.ServeMux, authHandlers *handlers.AuthHandlers, chatHandlers *handlers.ChatHandlers, wsHandlers *handlers.WebSocketHandlers) {
	// Auth routes
	mux.HandleFunc("POST /api/users/register", authHandlers.Register)
	mux.HandleFunc("POST /api/users/login", authHandlers.Login)
	mux.HandleFunc("GET /api/users/profile", authHandlers.Profile)

	// Chat routes
	mux.HandleFunc("GET /api/users/users", chatHandlers.ListUsers)
	mux.HandleFunc("GET /api/users/chats", chatHandlers.ListChats)
	mux.HandleFunc("POST /api/users/chats", chatHandlers.CreateChat)
	mux.HandleFunc("GET /api/users/chats/{chatId}/messages", chatHandlers.ListMessages)

	// WebSocket route
	mux.HandleFunc("GET /ws", wsHandlers.HandleWebSocket)
}

func corsMiddleware(origin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func printAPIEndpoints() {
	logger.Info("API endpoints:")
	logger.Info("   POST /api/users/register")
	logger.Info("   POST /api/users/login")
	logger.Info("   GET  /api/users/profile")
	logger.Info("   GET  /api/users/users")
	logger.Info("   GET  /api/users/chats")
	logger.Info("   POST /api/users/chats")
	logger.Info("   GET  /api/users/chats/{chatId}/messages")
}

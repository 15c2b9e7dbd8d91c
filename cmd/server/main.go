package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"gupshup/internal/auth"
	"gupshup/internal/config"
	"gupshup/internal/database"
	"gupshup/internal/fanout"
	"gupshup/internal/gateway"
	"gupshup/internal/handlers"
	"gupshup/internal/membership"
	"gupshup/internal/presence"
	"gupshup/internal/registry"
	"gupshup/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.NewPostgresDB(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Real-time core, constructed once and injected everywhere
	reg := registry.New()
	tracker := presence.NewTracker()
	router := fanout.NewRouter(reg)

	// Services
	authService := auth.NewService(db, cfg)
	membershipService := membership.NewService(db, db, router)

	// Session gateway
	gw := gateway.New(reg, tracker, router, authService, db)

	// Handlers
	authHandlers := handlers.NewAuthHandlers(authService)
	chatHandlers := handlers.NewChatHandlers(membershipService, authService, db)

	// Setup routes
	mux := http.NewServeMux()
	setupRoutes(mux, authHandlers, chatHandlers, gw)

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      corsMiddleware(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("Server started on http://localhost%s", cfg.Server.Port)
	logger.Info("WebSocket endpoint: ws://localhost%s/ws", cfg.Server.Port)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Server shutting down...")
}

func setupRoutes(mux *http.ServeMux, authHandlers *handlers.AuthHandlers, chatHandlers *handlers.ChatHandlers, gw *gateway.Gateway) {
	// Auth routes
	mux.HandleFunc("POST /login", authHandlers.Login)
	mux.HandleFunc("POST /register", authHandlers.Register)

	// Chat routes
	mux.HandleFunc("GET /chats", chatHandlers.ListChats)
	mux.HandleFunc("POST /chats", chatHandlers.CreateChat)
	mux.HandleFunc("GET /chats/{id}", chatHandlers.GetChat)
	mux.HandleFunc("PUT /chats/{id}", chatHandlers.RenameChat)
	mux.HandleFunc("DELETE /chats/{id}", chatHandlers.DeleteChat)
	mux.HandleFunc("PUT /chats/{id}/members", chatHandlers.AddMembers)
	mux.HandleFunc("DELETE /chats/{id}/members/{userId}", chatHandlers.RemoveMember)
	mux.HandleFunc("DELETE /chats/{id}/leave", chatHandlers.LeaveChat)
	mux.HandleFunc("GET /chats/{id}/messages", chatHandlers.GetMessages)

	// WebSocket route
	mux.HandleFunc("/ws", gw.HandleWebSocket)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

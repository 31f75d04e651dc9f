// Command smux-server runs the session observation API: list, create,
// and kill sessions over HTTP, watch them over WebSocket. Session state
// lives in tmux; the server only observes and journals it.
package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/agent-sandbox/smux/api/handlers"
	"github.com/agent-sandbox/smux/internal/db"
	"github.com/agent-sandbox/smux/internal/mux"
	"github.com/agent-sandbox/smux/internal/pty"
	"github.com/agent-sandbox/smux/internal/repository"
	"github.com/agent-sandbox/smux/internal/session"
	"github.com/agent-sandbox/smux/internal/ws"
)

func main() {
	// Get configuration from environment
	port := getEnv("PORT", "8080")
	dbPath := getEnv("DB_PATH", "data/sessions.db")
	logDir := getEnv("LOG_DIR", "data/logs")

	// Ensure data directories exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.Fatalf("Failed to create log directory: %v", err)
	}

	// Initialize database
	database, err := db.InitDB(dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.CloseDB()

	journal := repository.NewJournal(database)

	// The same SMUX_SOCKET/SMUX_CONFIG environment the CLI honors.
	tmux := mux.NewTmux()
	manager := session.NewManager(tmux, session.Config{})

	// Bridge and WebSocket service for remote viewers
	bridge := pty.NewBridge(tmux, logDir)
	defer bridge.Close()

	wsService := ws.NewService(bridge)
	defer wsService.Close()

	// By default any origin may attach (development). Set ALLOWED_ORIGIN
	// to lock viewers to one origin.
	if origin := os.Getenv("ALLOWED_ORIGIN"); origin != "" {
		ws.SetCheckOrigin(func(r *http.Request) bool {
			return r.Header.Get("Origin") == origin
		})
	}

	// Initialize handlers
	sessionHandler := handlers.NewSessionHandler(manager, tmux, journal, wsService, logDir)
	wsHandler := handlers.NewWebSocketHandler(tmux, wsService)

	// Initialize Gin router
	r := gin.Default()

	// Enable CORS for development
	r.Use(corsMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})

	// API routes
	api := r.Group("/api")
	{
		sessionHandler.RegisterRoutes(api)
		wsHandler.RegisterRoutes(api)
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("Shutting down server...")
		wsService.Close()
		bridge.Close()
		db.CloseDB()
		os.Exit(0)
	}()

	// Start server
	log.Printf("Starting server on port %s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// corsMiddleware returns a CORS middleware for development.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// CyberLover - AI Companion Chat Server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/cyberlover-ai/cyberlover/internal/api"
	"github.com/cyberlover-ai/cyberlover/internal/auth"
	"github.com/cyberlover-ai/cyberlover/internal/config"
	"github.com/cyberlover-ai/cyberlover/internal/generation"
	"github.com/cyberlover-ai/cyberlover/internal/ledger"
	"github.com/cyberlover-ai/cyberlover/internal/middleware"
	"github.com/cyberlover-ai/cyberlover/internal/payments"
	"github.com/cyberlover-ai/cyberlover/internal/store"
	"github.com/cyberlover-ai/cyberlover/web"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close store", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	ledgers := ledger.NewManager(repo)

	authSvc := auth.NewService(repo, cfg.JWTSecret, cfg.SessionTTL)

	// Generation backend (optional). Without an API key chat still works and
	// always answers with the fallback reply.
	var genSvc *generation.Service
	if cfg.GeminiAPIKey != "" {
		gemini, err := generation.NewGemini(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			slog.Warn("Failed to initialize generation client, AI replies disabled", "error", err)
		} else {
			genSvc = generation.NewService(gemini)
			defer genSvc.Close()
			slog.Info("Generation client initialized", "model", cfg.GeminiModel)
		}
	}
	if genSvc == nil {
		slog.Info("AI replies disabled (GEMINI_API_KEY not set or client failed)")
	}

	// Payment provider (optional). Without it checkout issues mock sessions.
	var checkout payments.Provider
	if cfg.StripeSecretKey != "" {
		stripe, err := payments.NewStripe(cfg.StripeSecretKey)
		if err != nil {
			slog.Warn("Failed to initialize payment provider, using mock checkout", "error", err)
		} else {
			checkout = stripe
			slog.Info("Payment provider initialized")
		}
	}

	// Initialize handlers.
	baseHandler := api.NewHandler(repo, ledgers, authSvc, genSvc, checkout, cfg)
	healthHandler := api.NewHealthHandler(repo)
	authHandler := api.NewAuthHandler(baseHandler)
	accountHandler := api.NewAccountHandler(baseHandler)
	chatHandler := api.NewChatHandler(baseHandler)
	paymentsHandler := api.NewPaymentsHandler(baseHandler)
	wsHandler := api.NewWebSocketHandler(baseHandler, cfg.FrontendURL)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	corsOrigins := []string{cfg.FrontendURL}
	if cfg.FrontendURL == "" {
		corsOrigins = []string{"*"}
	}
	r.Use(middleware.CORS(corsOrigins))
	r.Use(authSvc.Middleware())

	// Public routes.
	healthHandler.RegisterHealth(r)
	authHandler.RegisterRoutes(r)
	accountHandler.RegisterRoutes(r)

	// Authenticated routes.
	chatHandler.RegisterRoutes(r)
	paymentsHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/chat", wsHandler.ServeHTTP)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // WebSocket chat sessions stay open indefinitely.
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	// Drain pending ledger writes before the store closes.
	ledgers.Close()

	slog.Info("Server stopped successfully")
}

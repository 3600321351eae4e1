package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/llmgov/gateway/internal/analytics"
	"github.com/llmgov/gateway/internal/auth"
	"github.com/llmgov/gateway/internal/config"
	"github.com/llmgov/gateway/internal/costs"
	"github.com/llmgov/gateway/internal/fallback"
	"github.com/llmgov/gateway/internal/handlers"
	"github.com/llmgov/gateway/internal/logging"
	"github.com/llmgov/gateway/internal/metrics"
	"github.com/llmgov/gateway/internal/providers"
	"github.com/llmgov/gateway/internal/ratelimit"
	"github.com/llmgov/gateway/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := logging.Setup(cfg.LogLevel)
	logger.Info("starting llm gateway", "port", cfg.Port, "env", cfg.Env)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("connected to postgres")

	redisClient, err := store.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()
	logger.Info("connected to redis")

	providerTable := providers.NewTable(cfg.OpenAIAPIKey, cfg.DeepSeekAPIKey, cfg.HuggingFaceAPIKey, cfg.ProviderTimeout)
	logger.Info("initialized provider adapters", "count", len(providerTable))

	authenticator := auth.New(db, cfg.DefaultRateLimitPerMinute)
	limiter := ratelimit.NewLimiter()
	limiter.SetGaugeSink(func(apiKeyID string, remaining float64) {
		if err := redisClient.SetGauge(ctx, "ratelimit:remaining:"+apiKeyID, remaining); err != nil {
			logger.Warn("failed to mirror rate limit gauge to redis", "api_key_id", apiKeyID, "error", err.Error())
		}
	})
	previewGuard := ratelimit.NewPreviewGuard(5, 10)
	executor := fallback.New(providerTable, cfg.ProviderTimeout)
	recorder := costs.New(db, logger)
	analyticsHandlers := analytics.New(db)

	chatHandler := handlers.NewChatHandler(authenticator, limiter, executor, recorder, db, logger)
	previewHandler := handlers.NewRoutingPreviewHandler(previewGuard)
	requireAuth := handlers.RequireAuth(authenticator)

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(90 * time.Second))

	r.Get("/health", handlers.Health)
	r.Get("/v1/routing/preview", previewHandler.ServeHTTP)
	r.Get("/v1/providers", analyticsHandlers.Providers)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/chat/completions", chatHandler.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/costs", analyticsHandlers.Costs)
			r.Get("/costs/records", analyticsHandlers.CostRecords)
			r.Get("/overview", analyticsHandlers.Overview)
			r.Get("/analytics", analyticsHandlers.Analytics)
			r.Get("/transactions/recent", analyticsHandlers.TransactionsRecent)
		})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err.Error())
	}

	logger.Info("server stopped")
}

// Package main is the media-gateway entrypoint. It wires the security
// gateway, job lifecycle controller, and worker pool over a shared
// Postgres repository and serves the HTTP API.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"media-gateway/auth"
	"media-gateway/config"
	"media-gateway/internal/api"
	"media-gateway/jobs"
	"media-gateway/observability"
	"media-gateway/ratelimit"
	"media-gateway/repository"
	"media-gateway/services"

	"github.com/joho/godotenv"
)

func main() {
	godotenv.Load()

	production := os.Getenv("ENV") == "production"
	observability.InitLogger(production)
	observability.InitMetrics()

	cfg, err := config.Load()
	if err != nil {
		observability.Fatal("invalid configuration", "error", err)
	}
	if !cfg.HasDatabase() {
		observability.Fatal("DATABASE_URL environment variable is required")
	}

	if err := repository.RunMigrations(cfg.Database.URL); err != nil {
		observability.Fatal("failed to run migrations", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, err := repository.NewRepository(ctx, cfg.Database.URL)
	if err != nil {
		observability.Fatal("failed to connect to database", "error", err)
	}
	defer repo.Close()
	observability.Info("connected to database")

	resolver := auth.NewResolver(repo)
	limiter := ratelimit.NewLimiter(repo, cfg.RateLimit)
	gateway := api.NewGateway(cfg, resolver, limiter)
	controller := jobs.NewController(repo, cfg.Jobs.DefaultMaxRetries)
	extractor := services.NewHTTPExtractor(cfg.Extractor.BaseURL)

	pool := jobs.NewPool(controller, extractor, cfg.Worker.PoolSize, cfg.PollInterval(), cfg.ExtractTimeout())
	pool.Start(ctx)
	observability.Info("worker pool started", "size", cfg.Worker.PoolSize)

	go limiter.RunJanitor(ctx, time.Duration(cfg.RateLimit.CleanupMinutes)*time.Minute)

	handler := api.NewHandler(cfg, repo, controller, limiter)
	router := api.NewRouter(handler, gateway, cfg)

	server := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	go func() {
		observability.Info("starting server", "port", cfg.HTTP.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			observability.Fatal("server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	observability.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		observability.Error("server forced to shutdown", "error", err)
	}

	cancel()
	pool.Wait()
	observability.Info("server stopped")
}

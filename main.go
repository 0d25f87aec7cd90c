package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/xiaot623/gogo/apm/internal/adapter/llm"
	"github.com/xiaot623/gogo/apm/internal/auth"
	"github.com/xiaot623/gogo/apm/internal/config"
	"github.com/xiaot623/gogo/apm/internal/hub"
	"github.com/xiaot623/gogo/apm/internal/logger"
	"github.com/xiaot623/gogo/apm/internal/oauth1"
	"github.com/xiaot623/gogo/apm/internal/policy"
	"github.com/xiaot623/gogo/apm/internal/repository"
	"github.com/xiaot623/gogo/apm/internal/resource"
	"github.com/xiaot623/gogo/apm/internal/scheduler"
	"github.com/xiaot623/gogo/apm/internal/service"
	"github.com/xiaot623/gogo/apm/internal/toolkit"
	handler "github.com/xiaot623/gogo/apm/internal/transport/http"
	"github.com/xiaot623/gogo/apm/internal/vectorstore"
)

func main() {
	// Load configuration
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	log.Info().
		Int("http_port", cfg.HTTPPort).
		Str("store", cfg.StoreDriver).
		Str("llm_base_url", cfg.LLMBaseURL).
		Msg("Starting apm...")

	if cfg.JWTSecret == "" {
		log.Fatal().Msg("JWT_SECRET is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize store
	db, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize store")
	}
	defer db.Close()

	// Initialize policy engine
	policyEngine, err := policy.LoadEngine(ctx, cfg.EventPolicyPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize policy engine")
	}

	// Live event stream
	eventHub := hub.NewHub()
	go eventHub.Run(ctx)

	// Initialize LLM clients. Organisations with their own key get their own client.
	defaultLLM := llm.NewLLMClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMTimeout)
	clients := func(apiKey string) llm.LLMClient {
		if apiKey == "" {
			return defaultLLM
		}
		return llm.NewLLMClient(cfg.LLMBaseURL, apiKey, cfg.LLMTimeout)
	}

	files := resource.FileLoader{Root: cfg.ResourceRoot}
	summarizer := resource.NewSummarizer(db, clients, vectorstore.NewMemory(), files, cfg.LLMModel)

	// Initialize service
	svc := service.New(db, policyEngine, eventHub, summarizer, files,
		oauth1.NewSigner(cfg.TwitterCallbackURL), toolkit.DefaultRegistry)

	// Seed the toolkit catalog so tool lookups find the built-ins
	if err := svc.EnsureToolkits(ctx, cfg.DefaultOrgID); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed toolkit catalog")
	}

	// Background summary refresh
	sched, err := scheduler.New(cfg.SummaryCron, svc, cfg.LLMTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize scheduler")
	}
	sched.Start()

	// Create Echo server
	server := handler.NewServer(svc, eventHub, auth.NewManager(cfg.JWTSecret, 0))

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.HTTPPort).Msg("API started")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down apm...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown server gracefully")
	}
	sched.Stop(shutdownCtx)
	cancel()

	log.Info().Msg("apm stopped")
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		return repository.NewSQLiteStore(cfg.DatabaseURL)
	case config.DriverPostgres:
		return repository.NewPostgresStore(ctx, cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

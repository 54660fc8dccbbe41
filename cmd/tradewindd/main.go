package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tradewind-ai/tradewind/internal/config"
	"github.com/tradewind-ai/tradewind/internal/orchestrator"
	"github.com/tradewind-ai/tradewind/internal/provider"
	"github.com/tradewind-ai/tradewind/internal/server"
	"github.com/tradewind-ai/tradewind/internal/storage"
	"github.com/tradewind-ai/tradewind/internal/storage/memory"
	"github.com/tradewind-ai/tradewind/internal/storage/sqlite"
	"github.com/tradewind-ai/tradewind/internal/telemetry"
	"github.com/tradewind-ai/tradewind/internal/tools"
	"github.com/tradewind-ai/tradewind/internal/validate"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if len(cfg.Providers) == 0 {
		log.Fatal("No providers configured")
	}

	shutdownTracer, err := telemetry.InitTracer("tradewind", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	store, err := newStore(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	if s, ok := store.(*sqlite.Store); ok && cfg.Storage.SQLite.RetentionDays > 0 {
		retention := time.Duration(cfg.Storage.SQLite.RetentionDays) * 24 * time.Hour
		go runSessionCleanup(s, retention, logger)
	}

	providers := make(map[string]provider.Completer, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		providers[pc.Name] = provider.New(pc.Name, pc.BaseURL, pc.APIKey, pc.Model,
			provider.WithLogger(logger))
	}

	router := provider.NewRouter(providers, cfg.Routing.Primary, cfg.Routing.Secondary, logger)
	if cfg.Routing.Mode != "" && !router.SetMode(cfg.Routing.Mode) {
		log.Fatalf("Unknown routing mode: %s", cfg.Routing.Mode)
	}

	var registryOpts []tools.RegistryOption
	if d, err := time.ParseDuration(cfg.Tools.CallTimeout); err == nil && d > 0 {
		registryOpts = append(registryOpts, tools.WithCallTimeout(d))
	}
	if d, err := time.ParseDuration(cfg.Tools.DiscoveryTimeout); err == nil && d > 0 {
		registryOpts = append(registryOpts, tools.WithDiscoveryTimeout(d))
	}
	registry := tools.NewRegistry(cfg.Tools.Services, tools.NewClient(&http.Client{}), logger, registryOpts...)

	engine := orchestrator.New(router, registry, validate.New(logger), store, logger,
		orchestrator.WithSystemPrompt(cfg.Chat.SystemPrompt),
		orchestrator.WithHistoryLimit(cfg.Chat.HistoryLimit),
		orchestrator.WithTokenBudget(cfg.Chat.TokenBudget),
		orchestrator.WithValidation(cfg.Validation.Enabled),
	)

	handlers := &server.Handlers{
		Orchestrator: engine,
		Provider:     router,
		Registry:     registry,
		Store:        store,
		Logger:       logger,
	}

	srv := server.New(cfg.Server.Port, logger, handlers)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	logger.Info("tradewind started",
		slog.Int("port", cfg.Server.Port),
		slog.String("routing_mode", router.Mode()),
		slog.Int("providers", len(providers)),
		slog.Int("tool_services", len(cfg.Tools.Services)),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatalf("Server failed: %v", err)
	case <-sigChan:
	}

	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

// runSessionCleanup drops stale sessions once an hour.
func runSessionCleanup(store *sqlite.Store, retention time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		removed, err := store.Cleanup(context.Background(), retention)
		if err != nil {
			logger.Error("session cleanup failed", slog.String("error", err.Error()))
		} else if removed > 0 {
			logger.Info("cleaned up stale sessions", slog.Int64("removed", removed))
		}
		<-ticker.C
	}
}

func newStore(cfg *config.Config, logger *slog.Logger) (storage.SessionStore, error) {
	switch cfg.Storage.Type {
	case "sqlite":
		logger.Info("using sqlite storage", slog.String("path", cfg.Storage.SQLite.Path))
		return sqlite.New(cfg.Storage.SQLite.Path)
	default:
		logger.Info("using in-memory storage")
		return memory.New(), nil
	}
}

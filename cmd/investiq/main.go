package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/investiq/internal/common"
	"github.com/ternarybob/investiq/internal/handlers"
	"github.com/ternarybob/investiq/internal/queue"
	"github.com/ternarybob/investiq/internal/server"
	"github.com/ternarybob/investiq/internal/services/embeddings"
	"github.com/ternarybob/investiq/internal/services/events"
	"github.com/ternarybob/investiq/internal/services/llm"
	"github.com/ternarybob/investiq/internal/services/market"
	"github.com/ternarybob/investiq/internal/services/scheduler"
	storage "github.com/ternarybob/investiq/internal/storage/badger"
	"github.com/ternarybob/investiq/internal/steps"
	"github.com/ternarybob/investiq/internal/workflow"
)

var (
	configPath  = flag.String("config", "", "Configuration file path")
	serverPort  = flag.Int("port", 0, "Server port (overrides config)")
	showVersion = flag.Bool("version", false, "Print version information")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("InvestIQ version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	// Auto-discover config file if not specified
	path := *configPath
	if path == "" {
		if _, err := os.Stat("investiq.toml"); err == nil {
			path = "investiq.toml"
		}
	}

	config, err := common.LoadFromFile(path)
	if err != nil {
		arbor.NewLogger().Fatal().Err(err).Str("path", path).Msg("Failed to load configuration")
		os.Exit(1)
	}
	if *serverPort != 0 {
		config.Server.Port = *serverPort
	}

	logger := common.InitLogger(config)
	common.PrintBanner(common.GetVersion())

	logger.Info().
		Str("config", path).
		Str("environment", config.Environment).
		Int("port", config.Server.Port).
		Msg("Configuration loaded")

	if err := run(config, logger); err != nil {
		logger.Fatal().Err(err).Msg("Application failed")
		os.Exit(1)
	}
}

func run(config *common.Config, logger arbor.ILogger) error {
	ctx := context.Background()

	// Storage
	storageManager, err := storage.NewManager(logger, &config.Storage.Badger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer storageManager.Close()

	// External services
	marketService, err := market.NewService(&config.Market, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize market service: %w", err)
	}

	llmService, err := llm.NewClaudeService(&config.Claude, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize LLM service: %w", err)
	}
	defer llmService.Close()

	embeddingService, err := embeddings.NewGeminiService(ctx, &config.Gemini, storageManager.KeyValueStorage(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize embedding service: %w", err)
	}
	defer embeddingService.Close()

	// Step registry
	registry := steps.NewRegistry()
	err = steps.RegisterAll(registry, steps.Dependencies{
		Market:     marketService,
		LLM:        llmService,
		Embeddings: embeddingService,
		Runs:       storageManager.RunStorage(),
		Reports:    storageManager.ReportStorage(),
		NewsLimit:  config.Market.NewsLimit,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("failed to register workflow steps: %w", err)
	}

	// Queue dispatcher over the shared Badger database
	dispatcher, err := queue.NewDispatcher(
		storageManager.DB().Store().Badger(),
		queue.FromAppConfig(&config.Queue),
		storageManager.InvocationStorage(),
		storageManager.DeadLetterStorage(),
		registry,
		logger,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize dispatcher: %w", err)
	}

	// Event bus + coordinator; the dispatcher calls back into the
	// coordinator on every terminal invocation
	eventService := events.NewService(logger)
	defer eventService.Close()

	coordinator := workflow.NewCoordinator(
		storageManager.RunStorage(),
		storageManager.InvocationStorage(),
		dispatcher,
		registry,
		eventService,
		config.Queue.MaxAttempts,
		logger,
	)
	dispatcher.SetCompletionHandler(coordinator)

	if err := dispatcher.Start(); err != nil {
		return fmt.Errorf("failed to start worker pools: %w", err)
	}
	defer dispatcher.Stop()

	// Scheduled re-analysis
	if config.Scheduler.Enabled {
		sched := scheduler.NewService(&config.Scheduler, coordinator, storageManager.RunStorage(), logger)
		if err := sched.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer sched.Stop()
	}

	// HTTP surface
	srv := server.New(config, &server.Handlers{
		Analysis:   handlers.NewAnalysisHandler(coordinator, storageManager.ReportStorage(), logger),
		DeadLetter: handlers.NewDeadLetterHandler(storageManager.DeadLetterStorage(), logger),
		WebSocket:  handlers.NewWebSocketHandler(eventService, logger),
		API:        handlers.NewAPIHandler(),
	}, logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			serverErr <- err
		}
	}()

	logger.Info().
		Str("url", fmt.Sprintf("http://%s:%d", config.Server.Host, config.Server.Port)).
		Msg("InvestIQ ready - Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case err := <-serverErr:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown failed")
	}

	return nil
}

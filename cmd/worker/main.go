package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/config"
	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/ledger"
	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/logger"
	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/provider"
	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/queue"
	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/repository"
	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/storage"
	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/sweeper"
	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/worker"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := logger.NewDefault()
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize database: %v", err)
	}

	jobRepo := repository.NewJobRepository(db)
	opRepo := repository.NewOperationRepository(db)
	resultRepo := repository.NewResultRepository(db)

	registry := queue.NewRegistry(&cfg.Queues, jobRepo)
	led := ledger.New(opRepo, &cfg.Ledger)

	searchClient := provider.NewSearchClient(&cfg.Providers.Search)
	extractClient := provider.NewExtractionClient(&cfg.Providers.Extraction)

	archive, err := storage.NewS3Archive(&cfg.Storage)
	if err != nil {
		logger.Fatal("Failed to initialize document archive: %v", err)
	}
	ctx := context.Background()
	if err := archive.EnsureBucket(ctx); err != nil {
		logger.Fatal("Failed to ensure archive bucket: %v", err)
	}

	sw, err := sweeper.New(&cfg.Sweeper, registry, led)
	if err != nil {
		logger.Fatal("Failed to initialize sweeper: %v", err)
	}
	sw.Start()
	defer sw.Stop()

	sink := worker.NewRepoSink(resultRepo)
	scorer := worker.NewModelScorer(extractClient, resultRepo)
	handlers := worker.NewHandlers(searchClient, extractClient, archive, sink, scorer)

	dispatcher := worker.NewDispatcher(cfg.Worker, registry, led)
	handlers.RegisterAll(dispatcher)

	runCtx, cancel := context.WithCancel(logger.SetComponent(ctx, "worker"))
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("Shutting down worker...")
		cancel()
	}()

	if err := dispatcher.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("Dispatcher exited: %v", err)
	}

	logger.Info("Worker exited")
}

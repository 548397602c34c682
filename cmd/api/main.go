package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/api"
	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/config"
	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/ledger"
	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/logger"
	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/queue"
	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/repository"
	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/sweeper"
)

func main() {
	// Support CONFIG_PATH environment variable for production deployments
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

	registry := queue.NewRegistry(&cfg.Queues, jobRepo)
	led := ledger.New(opRepo, &cfg.Ledger)

	// The API process carries a sweeper too: the on-demand reclaim endpoint
	// uses it directly, and its cron entries cover deployments without a
	// dedicated worker replica.
	sw, err := sweeper.New(&cfg.Sweeper, registry, led)
	if err != nil {
		logger.Fatal("Failed to initialize sweeper: %v", err)
	}
	sw.Start()
	defer sw.Stop()

	router := api.SetupRouter(api.Deps{
		DB:       db,
		Ledger:   led,
		Registry: registry,
		Jobs:     jobRepo,
		Sweeper:  sw,
	}, &cfg.Server)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting API server on port %d (%s mode)", cfg.Server.Port, cfg.Server.Mode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/api"
	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/broker"
	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/config"
	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/database"
	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/marketdata"
	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/reconcile"
	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/repository"
	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/scheduler"
	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Open database connection
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	log.Printf("Connected to database: %s", cfg.Database.Path)

	// Create repositories
	portfolioRepo := repository.NewPortfolioRepository(db)
	connectionRepo := repository.NewConnectionRepository(db)
	positionRepo := repository.NewPositionRepository(db)
	snapshotRepo := repository.NewSnapshotRepository(db)
	resolutionRepo := repository.NewResolutionRepository(db)
	stagedRepo := repository.NewStagedRecordRepository(db)

	// Token vault for broker access tokens at rest
	vault, err := broker.NewTokenVault(cfg.Broker.VaultKeys)
	if err != nil {
		log.Fatalf("Failed to initialize token vault: %v", err)
	}

	// Create services
	systemService := service.NewSystemService(db)
	portfolioService := service.NewPortfolioService(portfolioRepo, cfg.Reconcile.BaseCurrency)
	connectionService := service.NewConnectionService(portfolioRepo, connectionRepo, stagedRepo, vault)

	// Broker clients and market data
	registry := broker.NewRegistry(
		broker.NewRESTClient(cfg.Broker.GatewayURL, connectionService),
		broker.NewStoredClient(stagedRepo),
	)
	market := marketdata.NewClient(cfg.Broker.MarketDataURL)

	reconciliationService := service.NewReconciliationService(
		portfolioRepo,
		connectionRepo,
		positionRepo,
		snapshotRepo,
		resolutionRepo,
		registry,
		market,
		market,
		reconcile.Options{
			FetchConcurrency: cfg.Reconcile.FetchConcurrency,
			FetchTimeout:     cfg.Reconcile.FetchTimeout,
			BaseCurrency:     cfg.Reconcile.BaseCurrency,
		},
	)
	resolutionService := service.NewResolutionService(portfolioRepo, snapshotRepo, resolutionRepo)

	// Periodic sync
	sched := scheduler.New(portfolioService, reconciliationService)
	if err := sched.Start(cfg.Reconcile.SyncSchedule); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Create router
	router := api.NewRouter(systemService, portfolioService, connectionService, reconciliationService, resolutionService, cfg)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting server on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

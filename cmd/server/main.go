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

	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/ai"
	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/api"
	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/config"
	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/metrics"
	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/monitoring"
	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/notifications"
	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/scheduler"
	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/storage"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load environment variables from .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})

	logrus.Info("Starting sentiment analysis service")
	metrics.Init()

	ctx := context.Background()

	store, err := openStore(cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize store: %v", err)
	}
	defer store.Close()

	archive, err := openArchive(ctx, cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize report archive: %v", err)
	}

	components, err := ai.NewComponents(cfg.AIProvider, cfg.EnrichMode, ai.TransportConfig{
		APIKey:      cfg.AIAPIKey,
		BaseURL:     cfg.AIBaseURL,
		Model:       cfg.AIModel,
		Temperature: cfg.AITemperature,
		Timeout:     cfg.AITimeout,
	})
	if err != nil {
		logrus.Fatalf("Failed to initialize AI provider: %v", err)
	}

	var suggester monitoring.Suggester
	if components.Client != nil {
		suggester = components.Client
	}

	notificationService := notifications.NewService(cfg)
	monitoringService := monitoring.NewService(cfg, store, archive, notificationService, components.Enricher, suggester)

	if cfg.SeedDefaultRules {
		if _, err := monitoringService.SeedDefaultRules(ctx); err != nil {
			logrus.Fatalf("Failed to seed default rules: %v", err)
		}
	}

	schedulerService := scheduler.NewService(cfg, monitoringService)
	if err := schedulerService.Start(); err != nil {
		logrus.Fatalf("Failed to start scheduler: %v", err)
	}
	defer schedulerService.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      api.NewServer(monitoringService).Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("HTTP server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited")
}

func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.StorageDriver {
	case config.DriverSQLite:
		logrus.Infof("Using SQLite store at %s", cfg.DatabasePath)
		return storage.NewSQLite(cfg.DatabasePath)
	default:
		logrus.Warn("Using in-memory store, data is lost on restart")
		return storage.NewMemoryStore(), nil
	}
}

// openArchive prefers blob storage, then a local directory. Reports are not
// archived when neither is configured.
func openArchive(ctx context.Context, cfg *config.Config) (storage.Archive, error) {
	switch {
	case cfg.StorageAccount != "":
		return storage.NewAzureArchive(ctx, cfg.StorageAccount, cfg.StorageContainer)
	case cfg.ArchiveDir != "":
		return storage.NewFileArchive(cfg.ArchiveDir)
	default:
		logrus.Info("No report archive configured")
		return nil, nil
	}
}

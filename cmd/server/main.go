package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"cropcast/internal/config"
	"cropcast/internal/handlers"
	"cropcast/internal/loader"
	"cropcast/internal/repository"
	"cropcast/internal/services"
	"cropcast/pkg/database"
	"cropcast/pkg/logging"
	"cropcast/pkg/metrics"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file (default: cropcast.yaml in . or ./config)")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logLevel, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("cropcast-api", version, logLevel)
	defer logger.Sync()

	ctx := context.Background()
	logger.Info(ctx, "[STARTUP] Starting CropCast API server", logging.Fields{
		"version":     version,
		"server_host": cfg.Server.Host,
		"server_port": cfg.Server.Port,
		"data_source": cfg.Data.Source,
	})

	// Initialize metrics collector
	metricsCollector := metrics.NewCollector("cropcast", prometheus.DefaultRegisterer)

	// Select the survey source
	var (
		source services.CatalogSource
		health handlers.HealthChecker
	)
	switch cfg.Data.Source {
	case config.SourcePostgres:
		db, err := database.NewPostgresDB(ctx, cfg.Database.Postgres(), logger, metricsCollector)
		if err != nil {
			logger.Fatal(ctx, "[STARTUP_ERROR] Failed to connect to database", logging.Fields{}, err)
		}
		defer db.Close()

		repo := repository.NewYieldRepository(db, logger, metricsCollector)
		source, health = repo, repo
	default:
		wl := loader.New(cfg.Data.Sheets(), logger)
		source = &services.WorkbookSource{Loader: wl, Path: cfg.Data.WorkbookPath}
	}

	// Initialize services
	analyticsService, err := services.NewAnalyticsService(ctx, source, cfg.Analytics, logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to load survey data", logging.Fields{
			"data_source": cfg.Data.Source,
		}, err)
	}

	// Initialize handlers
	analyticsHandler := handlers.NewAnalyticsHandler(analyticsService, health, logger, metricsCollector)
	analyticsHandler.SetDocsPage(handlers.DocsPage{
		Title:     cfg.Server.Docs.Title,
		SpecURL:   cfg.Server.Docs.SpecURL,
		AssetsURL: cfg.Server.Docs.AssetsURL,
	})

	// Setup router
	router := mux.NewRouter()
	router.Use(handlers.RequestID, handlers.Instrument(logger, metricsCollector))

	// Register routes
	analyticsHandler.RegisterRoutes(router)

	// Prometheus metrics endpoint
	router.Handle("/metrics", promhttp.Handler())

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ErrorLog:     zap.NewStdLog(logger.Zap()),
	}

	// Start server in goroutine
	go func() {
		logger.Info(ctx, "[SERVER_START] HTTP server listening", logging.Fields{
			"address": server.Addr,
		})

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(ctx, "[SERVER_ERROR] Server failed", logging.Fields{}, err)
		}
	}()

	// SIGHUP reloads the survey; SIGINT and SIGTERM stop the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range quit {
		if sig != syscall.SIGHUP {
			break
		}
		logger.Info(ctx, "[RELOAD] Reloading survey data", logging.Fields{})
		if err := analyticsService.Reload(ctx); err != nil {
			logger.Error(ctx, "[RELOAD_ERROR] Reload failed, keeping previous data", logging.Fields{}, err)
		}
	}

	logger.Info(ctx, "[SHUTDOWN] Shutting down server...", logging.Fields{})

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "[SHUTDOWN_ERROR] Server forced to shutdown", logging.Fields{}, err)
	}

	logger.Info(ctx, "[SHUTDOWN_COMPLETE] Server stopped", logging.Fields{})
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"cropcast/internal/config"
	"cropcast/internal/loader"
	"cropcast/internal/repository"
	"cropcast/internal/services"
	"cropcast/pkg/database"
	"cropcast/pkg/logging"
	"cropcast/pkg/metrics"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "", "Path to a YAML config file")
	workbook := flag.String("workbook", "", "Survey workbook to load (default: data.workbook_path)")
	batchSize := flag.Int("batch-size", services.DefaultBatchSize, "Number of rows to insert in each transaction")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *workbook == "" {
		*workbook = cfg.Data.WorkbookPath
	}

	// Initialize logger
	logLevel, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("cropcast-ingester", "1.0.0", logLevel)
	defer logger.Sync()

	ctx := context.Background()
	logger.Info(ctx, "[INGESTER_START] Starting survey ingestion", logging.Fields{
		"version":    "1.0.0",
		"workbook":   *workbook,
		"batch_size": *batchSize,
	})

	// Initialize metrics collector
	metricsCollector := metrics.NewCollector("cropcast_ingester", prometheus.NewRegistry())

	// Initialize database
	db, err := database.NewPostgresDB(ctx, cfg.Database.Postgres(), logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[INGESTER_ERROR] Failed to connect to database", logging.Fields{}, err)
	}
	defer db.Close()

	// Initialize repository and services
	yieldRepo := repository.NewYieldRepository(db, logger, metricsCollector)
	wl := loader.New(cfg.Data.Sheets(), logger)
	ingestionService := services.NewIngestionService(yieldRepo, wl, logger, metricsCollector)

	// Ingest data
	result, err := ingestionService.IngestWorkbook(ctx, *workbook, *batchSize)
	if err != nil {
		logger.Fatal(ctx, "[INGESTION_ERROR] Ingestion failed", logging.Fields{
			"workbook": *workbook,
		}, err)
	}

	// Print results
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("INGESTION COMPLETE")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Workbook:           %s\n", result.Source)
	fmt.Printf("Country-year rows:  %d\n", result.CountryYearRows)
	fmt.Printf("Zone-year rows:     %d\n", result.ZoneYearRows)
	fmt.Printf("Climate zones:      %d\n", result.ZoneRows)
	fmt.Printf("Skipped rows:       %d\n", result.SkippedRows)
	fmt.Printf("Duration:           %v\n", result.Duration)

	if len(result.Errors) > 0 {
		fmt.Printf("\nSkipped (%d):\n", len(result.Errors))
		for i, errMsg := range result.Errors {
			if i < 10 {
				fmt.Printf("  - %s\n", errMsg)
			}
		}
		if len(result.Errors) > 10 {
			fmt.Printf("  ... and %d more\n", len(result.Errors)-10)
		}
	}

	logger.Info(ctx, "[INGESTER_COMPLETE] Ingestion completed successfully", logging.Fields{
		"country_year_rows": result.CountryYearRows,
		"zone_year_rows":    result.ZoneYearRows,
		"skipped_rows":      result.SkippedRows,
		"duration_seconds":  result.Duration.Seconds(),
	})
}

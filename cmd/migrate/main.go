package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"cropcast/internal/config"
	"cropcast/migrations"
	"cropcast/pkg/database"
	"cropcast/pkg/logging"
	"cropcast/pkg/metrics"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	configPath := flag.String("config", "", "Path to a YAML config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	steps, err := migrations.List(*direction)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid direction: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("cropcast-migrate", "1.0.0", logging.WarnLevel)
	metricsCollector := metrics.NewCollector("cropcast_migrate", prometheus.NewRegistry())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	// Connect to database
	db, err := database.NewPostgresDB(ctx, cfg.Database.Postgres(), logger, metricsCollector)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	fmt.Println("Connected to database successfully")

	for _, m := range steps {
		fmt.Printf("Running migration: %s (%s)\n", m.Name, *direction)

		if _, err := db.ExecContext(ctx, "migrate_"+*direction, m.SQL); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to execute migration %s: %v\n", m.Name, err)
			os.Exit(1)
		}
	}

	fmt.Printf("Migration completed successfully (%d applied)\n", len(steps))
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"solar-analyzer/internal/config"
	"solar-analyzer/pkg/database"
	"solar-analyzer/pkg/logging"
	"solar-analyzer/pkg/metrics"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up, down or status")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if !cfg.HistoryEnabled() {
		fmt.Fprintln(os.Stderr, "DATABASE_DSN is not set; nothing to migrate")
		os.Exit(1)
	}

	logger := logging.NewConsoleLogger("solar-migrate", "1.0.0", logging.ParseLevel(cfg.Logging.Level))
	ctx := context.Background()

	db, err := database.NewPostgresDB(ctx, database.Config{
		DSN:          cfg.Database.DSN,
		MaxOpenConns: 2,
		MaxIdleConns: 1,
	}, logger, metrics.NewCollector("solar_migrate"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	switch *direction {
	case "up":
		err = db.Migrate(ctx)
	case "down":
		err = db.MigrateDown(ctx)
	case "status":
		err = db.MigrationStatus(ctx)
	default:
		err = fmt.Errorf("unknown direction %q", *direction)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		db.Close()
		os.Exit(1)
	}

	fmt.Println("Migration completed successfully")
}

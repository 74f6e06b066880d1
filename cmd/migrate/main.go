package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/flexprice/flexbill/internal/config"
	"github.com/flexprice/flexbill/internal/logger"
	"github.com/flexprice/flexbill/internal/postgres"
	"github.com/golang-migrate/migrate/v4"
)

func main() {
	// Parse command line flags
	down := flag.Int("down", 0, "Roll back this many migrations instead of applying pending ones")
	version := flag.Bool("version", false, "Print the current schema version and exit")
	flag.Parse()

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := logger.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	logger.Infow("Connecting to database", "host", cfg.Postgres.Host)
	db, err := postgres.NewDB(cfg, logger)
	if err != nil {
		logger.Fatalw("Failed to connect to postgres", "error", err)
	}
	defer db.Close()

	switch {
	case *version:
		m, err := postgres.NewMigrator(db)
		if err != nil {
			logger.Fatalw("Failed to load migrations", "error", err)
		}
		v, dirty, err := m.Version()
		if err != nil && err != migrate.ErrNilVersion {
			logger.Fatalw("Failed to read schema version", "error", err)
		}
		fmt.Printf("version=%d dirty=%t\n", v, dirty)
		return
	case *down > 0:
		m, err := postgres.NewMigrator(db)
		if err != nil {
			logger.Fatalw("Failed to load migrations", "error", err)
		}
		logger.Infow("Rolling back migrations", "steps", *down)
		if err := m.Steps(-*down); err != nil {
			logger.Fatalw("Failed to roll back migrations", "error", err)
		}
	default:
		logger.Info("Running database migrations...")
		if err := postgres.Migrate(db, logger); err != nil {
			logger.Fatalw("Failed to apply migrations", "error", err)
		}
	}

	fmt.Println("Migration process completed")
}

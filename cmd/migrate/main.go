package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Schema runner for the shared database. All services read and write
// the same schema, so migrations are applied once, from here, never
// from the service binaries.
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	flag.Parse()
	if flag.NArg() < 1 {
		logger.Error("usage: migrate <up|down|version>")
		os.Exit(1)
	}

	if err := run(logger, flag.Arg(0)); err != nil {
		logger.Error("migration failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(logger *slog.Logger, command string) error {
	postgresURL := os.Getenv("POSTGRES_URL")
	if postgresURL == "" {
		return errors.New("POSTGRES_URL environment variable is required")
	}

	sourceURL := os.Getenv("MIGRATIONS_PATH")
	if sourceURL == "" {
		sourceURL = "file://migrations"
	}

	m, err := migrate.New(sourceURL, postgresURL)
	if err != nil {
		return fmt.Errorf("open migration source: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	switch command {
	case "up":
		if err := m.Up(); err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				logger.Info("schema already up to date")
				return nil
			}
			return err
		}
		logger.Info("migrations applied")
		return nil

	case "down":
		if err := m.Steps(-1); err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				logger.Info("nothing to roll back")
				return nil
			}
			return err
		}
		logger.Info("rolled back one migration")
		return nil

	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			logger.Info("no migrations applied yet")
			return nil
		}
		if err != nil {
			return err
		}
		logger.Info("schema version", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))
		return nil

	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

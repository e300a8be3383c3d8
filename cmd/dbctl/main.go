// dbctl drives schema migrations for both stores from the command line.
//
// Usage:
//
//	dbctl migrate   apply pending migrations to Postgres and ClickHouse
//	dbctl reset     drop everything and re-migrate (local databases only)
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/anotherai-dev/anotherai/pkg/analytics"
	"github.com/anotherai-dev/anotherai/pkg/config"
	"github.com/anotherai-dev/anotherai/pkg/storage"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: dbctl <migrate|reset>")
		os.Exit(2)
	}
	command := os.Args[1]

	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded, continuing with existing environment", "error", err)
	}
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	switch command {
	case "migrate":
		if err := migrate(ctx, cfg); err != nil {
			slog.Error("Migration failed", "error", err)
			os.Exit(1)
		}
		slog.Info("Migrations applied")
	case "reset":
		if err := reset(ctx, cfg); err != nil {
			slog.Error("Reset failed", "error", err)
			os.Exit(1)
		}
		slog.Info("Databases reset")
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\nusage: dbctl <migrate|reset>\n", command)
		os.Exit(2)
	}
}

func migrate(ctx context.Context, cfg *config.Config) error {
	if err := storage.Migrate(cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	slog.Info("Postgres migrations applied")

	analyticsStore, err := analytics.New(ctx, cfg.ClickHouse)
	if err != nil {
		return fmt.Errorf("clickhouse: %w", err)
	}
	defer analyticsStore.Close()
	if err := analyticsStore.Migrate(ctx); err != nil {
		return fmt.Errorf("clickhouse: %w", err)
	}
	slog.Info("ClickHouse migrations applied")
	return nil
}

func reset(ctx context.Context, cfg *config.Config) error {
	for _, dsn := range []string{cfg.Postgres.DSN, cfg.ClickHouse.DSN} {
		if !isLocalDSN(dsn) {
			return fmt.Errorf("refusing to reset non-local database %q", redactDSN(dsn))
		}
	}

	if err := storage.Reset(cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	slog.Info("Postgres reset")

	analyticsStore, err := analytics.New(ctx, cfg.ClickHouse)
	if err != nil {
		return fmt.Errorf("clickhouse: %w", err)
	}
	defer analyticsStore.Close()
	if err := analyticsStore.Reset(ctx); err != nil {
		return fmt.Errorf("clickhouse: %w", err)
	}
	slog.Info("ClickHouse reset")
	return nil
}

// isLocalDSN accepts only loopback hosts. Reset is destructive and must
// never reach a shared database by accident.
func isLocalDSN(dsn string) bool {
	for _, host := range []string{"localhost", "127.0.0.1", "[::1]"} {
		if strings.Contains(dsn, "@"+host) || strings.Contains(dsn, "//"+host) {
			return true
		}
	}
	return false
}

// redactDSN strips credentials before a DSN reaches logs or stderr.
func redactDSN(dsn string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return dsn
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = rest[at+1:]
	}
	return scheme + "://" + rest
}

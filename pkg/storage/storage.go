// Package storage is the relational store. Every tenant-owned table
// carries a tenant_uid column defaulted from the app.tenant_uid session
// setting and a row-level-security policy over it; the store sets the
// setting on every connection checkout, so repository code never filters
// by tenant explicitly.
package storage

import (
	"context"
	stdsql "database/sql"
	"embed"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for migrations

	"github.com/anotherai-dev/anotherai/pkg/apperr"
	"github.com/anotherai-dev/anotherai/pkg/config"
)

//go:embed migrations
var migrationsFS embed.FS

// Store wraps the pgx pool with tenant-scoped checkout.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New connects the pool and verifies the database is reachable. Migrations
// are applied separately (main calls Migrate before New; dbctl drives
// them explicitly).
func New(ctx context.Context, cfg config.PostgresConfig) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &Store{pool: pool, logger: slog.Default()}, nil
}

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

// Ping reports store reachability for the readiness probe.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Migrate applies all pending migrations embedded in the binary.
func Migrate(dsn string) error {
	m, cleanup, err := newMigrator(dsn)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

// Reset drops every object in the database and re-applies all migrations.
// Callers must refuse to run this against anything but a local database.
func Reset(dsn string) error {
	m, cleanup, err := newMigrator(dsn)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := m.Drop(); err != nil {
		return fmt.Errorf("dropping schema: %w", err)
	}
	cleanup()

	return Migrate(dsn)
}

func newMigrator(dsn string) (*migrate.Migrate, func(), error) {
	db, err := stdsql.Open("pgx", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database for migrations: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("creating postgres migration driver: %w", err)
	}
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("loading embedded migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("creating migrator: %w", err)
	}
	return m, func() { _ = source.Close(); _ = db.Close() }, nil
}

// withTenant runs fn on a connection whose session carries the tenant uid.
// The setting is cleared before the connection returns to the pool on
// every exit path.
func (s *Store) withTenant(ctx context.Context, tenantUID int64, fn func(conn *pgxpool.Conn) error) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer func() {
		if _, err := conn.Exec(context.WithoutCancel(ctx),
			`SELECT set_config('app.tenant_uid', '', false)`); err != nil {
			s.logger.Warn("Failed to clear tenant context on release", "error", err)
		}
		conn.Release()
	}()

	if _, err := conn.Exec(ctx,
		`SELECT set_config('app.tenant_uid', $1, false)`,
		strconv.FormatInt(tenantUID, 10)); err != nil {
		return fmt.Errorf("setting tenant context: %w", err)
	}
	return fn(conn)
}

// mapPgError translates pgx failures into the shared error taxonomy.
func mapPgError(err error, objectType, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(objectType, "%s %q not found", objectType, id)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return apperr.Duplicate("%s %q already exists", objectType, id)
	}
	return err
}

// encodeCursor encodes the created_at of the last item of a page.
func encodeCursor(t time.Time) string {
	return base64.URLEncoding.EncodeToString([]byte(t.UTC().Format(time.RFC3339Nano)))
}

// decodeCursor reverses encodeCursor. An empty cursor means "from the top".
func decodeCursor(cursor string) (time.Time, error) {
	if cursor == "" {
		return time.Time{}, nil
	}
	raw, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, apperr.BadRequest("invalid cursor")
	}
	t, err := time.Parse(time.RFC3339Nano, string(raw))
	if err != nil {
		return time.Time{}, apperr.BadRequest("invalid cursor")
	}
	return t, nil
}

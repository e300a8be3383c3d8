// Package analytics is the ClickHouse store for completions, inputs,
// versions, and annotations. Tenant isolation uses per-tenant read-only
// database users (readonly_<uid>) confined by row policies; arbitrary user
// SQL runs through those users, so an injection cannot cross the tenant
// boundary.
package analytics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/anotherai-dev/anotherai/pkg/config"
)

// Store wraps the admin ClickHouse connection. Writes and trusted reads go
// through it; untrusted SQL goes through per-tenant users (see RawQuery).
type Store struct {
	conn     driver.Conn
	opts     *clickhouse.Options
	database string
	salt     string
	logger   *slog.Logger

	mu           sync.Mutex
	ensuredUsers map[int64]struct{}
}

// New connects to ClickHouse with the admin credentials from the DSN.
func New(ctx context.Context, cfg config.ClickHouseConfig) (*Store, error) {
	opts, err := clickhouse.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing clickhouse dsn: %w", err)
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening clickhouse connection: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("pinging clickhouse: %w", err)
	}

	database := opts.Auth.Database
	if database == "" {
		database = "default"
	}
	return &Store{
		conn:         conn,
		opts:         opts,
		database:     database,
		salt:         cfg.PasswordSalt,
		logger:       slog.Default(),
		ensuredUsers: make(map[int64]struct{}),
	}, nil
}

// Close releases the admin connection.
func (s *Store) Close() error { return s.conn.Close() }

// Ping reports store reachability for the readiness probe.
func (s *Store) Ping(ctx context.Context) error { return s.conn.Ping(ctx) }

// readonlyUser returns the per-tenant user name.
func readonlyUser(tenantUID int64) string {
	return fmt.Sprintf("readonly_%d", tenantUID)
}

// readonlyPassword derives the deterministic per-tenant password from the
// server-side salt. Deterministic so every pod agrees without coordination.
func (s *Store) readonlyPassword(tenantUID int64) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s:%d", s.salt, tenantUID))
	return hex.EncodeToString(sum[:])
}

package analytics

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"
)

//go:embed migrations
var migrationsFS embed.FS

// Migrate applies pending schema files in stem order. The engine records
// applied ids in the migrations table and refuses to run when the recorded
// sequence is not a prefix of the files on disk; an advisory lock row
// keeps concurrent pods from applying simultaneously.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS migrations (
			id         String,
			applied_at DateTime64(3, 'UTC')
		) ENGINE = MergeTree ORDER BY id`); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}
	if err := s.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS migration_lock (
			locked_at DateTime64(3, 'UTC')
		) ENGINE = MergeTree ORDER BY locked_at`); err != nil {
		return fmt.Errorf("creating migration lock table: %w", err)
	}

	if err := s.acquireLock(ctx); err != nil {
		return err
	}
	defer s.releaseLock(ctx)

	files, err := migrationFiles()
	if err != nil {
		return err
	}
	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return err
	}

	// The applied sequence must be a prefix of the on-disk sequence.
	if len(applied) > len(files) {
		return fmt.Errorf("database has %d applied migrations but only %d files exist", len(applied), len(files))
	}
	for i, id := range applied {
		if files[i] != id {
			return fmt.Errorf("migration mismatch at position %d: database has %q, files have %q", i, id, files[i])
		}
	}

	for _, id := range files[len(applied):] {
		raw, err := migrationsFS.ReadFile("migrations/" + id + ".sql")
		if err != nil {
			return fmt.Errorf("reading migration %q: %w", id, err)
		}
		for _, stmt := range splitStatements(string(raw)) {
			if err := s.conn.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("applying migration %q: %w", id, err)
			}
		}
		if err := s.conn.Exec(ctx,
			`INSERT INTO migrations (id, applied_at) VALUES (?, ?)`,
			id, time.Now().UTC()); err != nil {
			return fmt.Errorf("recording migration %q: %w", id, err)
		}
		s.logger.Info("Applied analytics migration", "id", id)
	}
	return nil
}

// Reset drops every table in the database and re-applies all migrations.
// Callers must refuse to run this against anything but a local database.
func (s *Store) Reset(ctx context.Context) error {
	rows, err := s.conn.Query(ctx,
		`SELECT name FROM system.tables WHERE database = currentDatabase()`)
	if err != nil {
		return fmt.Errorf("listing tables: %w", err)
	}
	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return err
		}
		tables = append(tables, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, table := range tables {
		if err := s.conn.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS `%s`", table)); err != nil {
			return fmt.Errorf("dropping table %q: %w", table, err)
		}
	}
	return s.Migrate(ctx)
}

func (s *Store) acquireLock(ctx context.Context) error {
	// A lock older than 10 minutes is from a crashed migrator and ignored.
	var held uint64
	if err := s.conn.QueryRow(ctx,
		`SELECT count() FROM migration_lock WHERE locked_at > now() - INTERVAL 10 MINUTE`).
		Scan(&held); err != nil {
		return fmt.Errorf("checking migration lock: %w", err)
	}
	if held > 0 {
		return fmt.Errorf("migration lock is held by another process")
	}
	if err := s.conn.Exec(ctx,
		`INSERT INTO migration_lock (locked_at) VALUES (?)`, time.Now().UTC()); err != nil {
		return fmt.Errorf("acquiring migration lock: %w", err)
	}
	return nil
}

func (s *Store) releaseLock(ctx context.Context) {
	if err := s.conn.Exec(ctx, `TRUNCATE TABLE migration_lock`); err != nil {
		s.logger.Warn("Failed to release migration lock", "error", err)
	}
}

func (s *Store) appliedMigrations(ctx context.Context) ([]string, error) {
	rows, err := s.conn.Query(ctx, `SELECT id FROM migrations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// migrationFiles returns the embedded migration stems in order.
func migrationFiles() ([]string, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("reading embedded migrations: %w", err)
	}
	var stems []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		stems = append(stems, strings.TrimSuffix(e.Name(), ".sql"))
	}
	sort.Strings(stems)
	return stems, nil
}

// splitStatements breaks a migration file into single statements: the
// driver executes one statement per call.
func splitStatements(sql string) []string {
	var out []string
	for _, stmt := range strings.Split(sql, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

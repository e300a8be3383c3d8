package analytics

import (
	"context"
	"fmt"
	"reflect"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/anotherai-dev/anotherai/pkg/apperr"
)

// tenantTables are the tables confined by per-tenant row policies.
var tenantTables = []string{"completions", "inputs", "versions", "annotations"}

// EnsureReadonlyUser lazily creates the tenant's read-only database user
// with its row policies. Statements are idempotent, so racing pods agree.
func (s *Store) EnsureReadonlyUser(ctx context.Context, tenantUID int64) error {
	s.mu.Lock()
	_, done := s.ensuredUsers[tenantUID]
	s.mu.Unlock()
	if done {
		return nil
	}

	user := readonlyUser(tenantUID)
	if err := s.conn.Exec(ctx, fmt.Sprintf(
		`CREATE USER IF NOT EXISTS %s IDENTIFIED WITH sha256_password BY '%s' SETTINGS readonly = 1`,
		user, s.readonlyPassword(tenantUID))); err != nil {
		return fmt.Errorf("creating read-only user for tenant %d: %w", tenantUID, err)
	}
	for _, table := range tenantTables {
		if err := s.conn.Exec(ctx, fmt.Sprintf(
			`GRANT SELECT ON %s.%s TO %s`, s.database, table, user)); err != nil {
			return fmt.Errorf("granting select on %s to tenant %d: %w", table, tenantUID, err)
		}
		if err := s.conn.Exec(ctx, fmt.Sprintf(
			`CREATE ROW POLICY IF NOT EXISTS tenant_%d ON %s.%s FOR SELECT USING tenant_uid = %d TO %s`,
			tenantUID, s.database, table, tenantUID, user)); err != nil {
			return fmt.Errorf("creating row policy on %s for tenant %d: %w", table, tenantUID, err)
		}
	}

	s.mu.Lock()
	s.ensuredUsers[tenantUID] = struct{}{}
	s.mu.Unlock()
	return nil
}

// RawQuery executes user-supplied SQL through the tenant's read-only user.
// The row policy, not SQL inspection, is the isolation boundary: whatever
// the query does, it only sees the tenant's rows.
func (s *Store) RawQuery(ctx context.Context, tenantUID int64, query string) ([]map[string]any, error) {
	if err := s.EnsureReadonlyUser(ctx, tenantUID); err != nil {
		return nil, err
	}

	opts := *s.opts
	opts.Auth.Username = readonlyUser(tenantUID)
	opts.Auth.Password = s.readonlyPassword(tenantUID)
	conn, err := clickhouse.Open(&opts)
	if err != nil {
		return nil, fmt.Errorf("opening tenant connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	rows, err := conn.Query(ctx, query)
	if err != nil {
		return nil, apperr.BadRequest("query failed: %v", err)
	}
	defer rows.Close()

	columns := rows.Columns()
	types := rows.ColumnTypes()

	var out []map[string]any
	for rows.Next() {
		targets := make([]any, len(columns))
		for i, t := range types {
			targets[i] = reflect.New(t.ScanType()).Interface()
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("scanning result row: %w", err)
		}
		record := make(map[string]any, len(columns))
		for i, name := range columns {
			record[name] = reflect.ValueOf(targets[i]).Elem().Interface()
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

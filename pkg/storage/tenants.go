package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/anotherai-dev/anotherai/pkg/apperr"
	"github.com/anotherai-dev/anotherai/pkg/models"
)

// Tenant and API-key reads run on the pool directly: they happen during
// authentication, before a tenant context exists.

const tenantColumns = `uid, slug, COALESCE(org_id, ''), COALESCE(owner_id, ''),
	COALESCE(customer_id, ''), current_credits_usd, payment_failure_at, created_at`

func scanTenant(row pgx.Row) (*models.Tenant, error) {
	var t models.Tenant
	err := row.Scan(&t.UID, &t.Slug, &t.OrgID, &t.OwnerID,
		&t.CustomerID, &t.CreditsUSD, &t.PaymentFailure, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// TenantByUID fetches one tenant.
func (s *Store) TenantByUID(ctx context.Context, uid int64) (*models.Tenant, error) {
	t, err := scanTenant(s.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE uid = $1`, uid))
	if err != nil {
		return nil, mapPgError(err, "tenant", fmt.Sprint(uid))
	}
	return t, nil
}

// TenantByOwner resolves a tenant from token claims: by organization id
// when present, otherwise by the bare subject.
func (s *Store) TenantByOwner(ctx context.Context, orgID, ownerID string) (*models.Tenant, error) {
	var row pgx.Row
	switch {
	case orgID != "":
		row = s.pool.QueryRow(ctx,
			`SELECT `+tenantColumns+` FROM tenants WHERE org_id = $1`, orgID)
	case ownerID != "":
		row = s.pool.QueryRow(ctx,
			`SELECT `+tenantColumns+` FROM tenants WHERE org_id IS NULL AND owner_id = $1`, ownerID)
	default:
		return nil, apperr.InvalidToken("token carries neither organization nor subject")
	}
	t, err := scanTenant(row)
	if err != nil {
		return nil, mapPgError(err, "tenant", orgID+ownerID)
	}
	return t, nil
}

// CreateTenant inserts a tenant and fills in its assigned uid.
func (s *Store) CreateTenant(ctx context.Context, t *models.Tenant) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO tenants (slug, org_id, owner_id)
		 VALUES ($1, NULLIF($2, ''), NULLIF($3, ''))
		 RETURNING uid, created_at`,
		t.Slug, t.OrgID, t.OwnerID).Scan(&t.UID, &t.CreatedAt)
	if err != nil {
		return mapPgError(err, "tenant", t.Slug)
	}
	return nil
}

// TenantByAPIKeyHash resolves the tenant owning the hashed key and returns
// the key record alongside it.
func (s *Store) TenantByAPIKeyHash(ctx context.Context, hash string) (*models.Tenant, *models.APIKey, error) {
	var t models.Tenant
	var k models.APIKey
	err := s.pool.QueryRow(ctx,
		`SELECT t.uid, t.slug, COALESCE(t.org_id, ''), COALESCE(t.owner_id, ''),
		        COALESCE(t.customer_id, ''), t.current_credits_usd, t.payment_failure_at, t.created_at,
		        k.id, k.tenant_uid, k.name, k.partial_key, k.created_by, k.created_at, k.last_used_at
		 FROM api_keys k JOIN tenants t ON t.uid = k.tenant_uid
		 WHERE k.secret_hash = $1 AND k.deleted_at IS NULL`, hash).
		Scan(&t.UID, &t.Slug, &t.OrgID, &t.OwnerID,
			&t.CustomerID, &t.CreditsUSD, &t.PaymentFailure, &t.CreatedAt,
			&k.ID, &k.TenantUID, &k.Name, &k.PartialKey, &k.CreatedBy, &k.CreatedAt, &k.LastUsedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, apperr.InvalidToken("unknown API key")
		}
		return nil, nil, err
	}
	return &t, &k, nil
}

// CreateAPIKey stores a new hashed key.
func (s *Store) CreateAPIKey(ctx context.Context, k *models.APIKey) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO api_keys (id, tenant_uid, name, partial_key, secret_hash, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at`,
		k.ID, k.TenantUID, k.Name, k.PartialKey, k.SecretHash, k.CreatedBy).
		Scan(&k.CreatedAt)
	if err != nil {
		return mapPgError(err, "api_key", k.ID)
	}
	return nil
}

// TouchAPIKey records a successful use. Best effort; errors are returned
// for the caller to log, never to fail a request on.
func (s *Store) TouchAPIKey(ctx context.Context, keyID string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = $2 WHERE id = $1`, keyID, at)
	return err
}

// MarkUserActive updates the tenant's activity timestamp.
func (s *Store) MarkUserActive(ctx context.Context, tenantUID int64, userID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE tenants SET last_active_at = now() WHERE uid = $1`, tenantUID)
	return err
}

// SetPaymentFailure records a failed payment attempt on the tenant.
func (s *Store) SetPaymentFailure(ctx context.Context, tenantUID int64, code string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE tenants SET payment_failure_at = now(), payment_failure_code = $2 WHERE uid = $1`,
		tenantUID, code)
	return err
}

// ClearPaymentFailure resets the failure marker after a successful payment.
func (s *Store) ClearPaymentFailure(ctx context.Context, tenantUID int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE tenants SET payment_failure_at = NULL, payment_failure_code = NULL WHERE uid = $1`,
		tenantUID)
	return err
}

// AddCredits tops up the tenant balance.
func (s *Store) AddCredits(ctx context.Context, tenantUID int64, amountUSD float64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE tenants SET current_credits_usd = current_credits_usd + $2 WHERE uid = $1`,
		tenantUID, amountUSD)
	return err
}

// DebitForCompletion debits the tenant balance exactly once per completion
// id. Replays are no-ops: the debit row keys on the completion id, and the
// balance update only happens when the row is new. The tenant row lock
// serializes concurrent debits.
func (s *Store) DebitForCompletion(ctx context.Context, tenantUID int64, completionID uuid.UUID, amountUSD float64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("starting debit transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`SELECT uid FROM tenants WHERE uid = $1 FOR UPDATE`, tenantUID); err != nil {
		return fmt.Errorf("locking tenant row: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`INSERT INTO credit_debits (completion_id, tenant_uid, amount_usd)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (completion_id) DO NOTHING`,
		completionID, tenantUID, amountUSD)
	if err != nil {
		return fmt.Errorf("recording debit: %w", err)
	}
	if tag.RowsAffected() == 1 {
		if _, err := tx.Exec(ctx,
			`UPDATE tenants SET current_credits_usd = current_credits_usd - $2 WHERE uid = $1`,
			tenantUID, amountUSD); err != nil {
			return fmt.Errorf("updating balance: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// Package auth authenticates requests and resolves them to a tenant.
// Bearer tokens are either aai- API keys looked up by hash or JWTs
// verified against a JWKS URL / single JWK. Tenants are created on first
// authenticated use.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anotherai-dev/anotherai/pkg/apperr"
	"github.com/anotherai-dev/anotherai/pkg/models"
)

// TenantStore is the slice of the relational store auth needs.
type TenantStore interface {
	TenantByAPIKeyHash(ctx context.Context, hash string) (*models.Tenant, *models.APIKey, error)
	TenantByOwner(ctx context.Context, orgID, ownerID string) (*models.Tenant, error)
	CreateTenant(ctx context.Context, t *models.Tenant) error
	TouchAPIKey(ctx context.Context, keyID string, at time.Time) error
}

// Authenticator resolves bearer tokens to tenants.
type Authenticator struct {
	store    TenantStore
	verifier TokenVerifier
	logger   *slog.Logger
}

// New builds an Authenticator.
func New(store TenantStore, verifier TokenVerifier) *Authenticator {
	return &Authenticator{store: store, verifier: verifier, logger: slog.Default()}
}

// Authenticate verifies the Authorization header value and returns the
// owning tenant.
func (a *Authenticator) Authenticate(ctx context.Context, authorization string) (*models.Tenant, error) {
	token, err := extractBearer(authorization)
	if err != nil {
		return nil, err
	}

	if IsAPIKey(token) {
		tenant, key, err := a.store.TenantByAPIKeyHash(ctx, HashKey(token))
		if err != nil {
			return nil, err
		}
		if err := a.store.TouchAPIKey(ctx, key.ID, time.Now()); err != nil {
			a.logger.Warn("Failed to record api key use", "key_id", key.ID, "error", err)
		}
		return tenant, nil
	}

	claims, err := a.verifier.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	return a.resolveTenant(ctx, claims)
}

// resolveTenant finds the claims' tenant, creating it on first use.
func (a *Authenticator) resolveTenant(ctx context.Context, claims Claims) (*models.Tenant, error) {
	tenant, err := a.store.TenantByOwner(ctx, claims.OrgID, claims.Subject)
	if err == nil {
		return tenant, nil
	}
	if apperr.CodeOf(err) != apperr.CodeObjectNotFound {
		return nil, err
	}

	tenant = &models.Tenant{
		Slug:    tenantSlug(claims),
		OrgID:   claims.OrgID,
		OwnerID: claims.Subject,
	}
	if createErr := a.store.CreateTenant(ctx, tenant); createErr != nil {
		// A concurrent request may have created it first.
		if apperr.CodeOf(createErr) == apperr.CodeDuplicateValue {
			return a.store.TenantByOwner(ctx, claims.OrgID, claims.Subject)
		}
		return nil, createErr
	}
	a.logger.Info("Created tenant on first use", "tenant_uid", tenant.UID, "slug", tenant.Slug)
	return tenant, nil
}

// CheckCredits gates billable requests: a tenant with an exhausted balance
// and a recorded payment failure is rejected.
func CheckCredits(tenant *models.Tenant) error {
	if tenant.CreditsUSD <= 0 && tenant.HasPaymentFailure() {
		return apperr.PaymentRequired("credits exhausted and last payment failed")
	}
	return nil
}

func extractBearer(authorization string) (string, error) {
	if authorization == "" {
		return "", apperr.InvalidToken("missing Authorization header")
	}
	scheme, token, ok := strings.Cut(authorization, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", apperr.InvalidToken("Authorization header must be a bearer token")
	}
	return strings.TrimSpace(token), nil
}

// tenantSlug derives a stable human slug from the claims.
func tenantSlug(claims Claims) string {
	source := claims.OrgID
	if source == "" {
		source = claims.Subject
	}
	slug := strings.ToLower(source)
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '-'
		}
	}, slug)
	return strings.Trim(fmt.Sprintf("%.48s", slug), "-")
}

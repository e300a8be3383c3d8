package models

import "time"

// Tenant is the billing and isolation unit. Every persisted record belongs
// to exactly one tenant, keyed by the 64-bit UID.
type Tenant struct {
	UID            int64      `json:"uid"`
	Slug           string     `json:"slug"`
	OrgID          string     `json:"org_id,omitempty"`
	OwnerID        string     `json:"owner_id,omitempty"`
	CreditsUSD     float64    `json:"current_credits_usd"`
	CustomerID     string     `json:"customer_id,omitempty"`
	PaymentFailure *time.Time `json:"payment_failure,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// HasPaymentFailure reports whether the tenant has a recorded payment failure.
func (t *Tenant) HasPaymentFailure() bool { return t.PaymentFailure != nil }

// Agent is a named prompt role within a tenant, unique by (tenant_uid, slug).
type Agent struct {
	UID       int32     `json:"uid"`
	TenantUID int64     `json:"-"`
	Slug      string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// APIKey is an opaque bearer secret. Only the hash is stored; PartialKey
// keeps the first characters for display.
type APIKey struct {
	ID         string     `json:"id"`
	TenantUID  int64      `json:"-"`
	Name       string     `json:"name"`
	PartialKey string     `json:"partial_key"`
	SecretHash string     `json:"-"`
	CreatedBy  string     `json:"created_by"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// Package models defines the value and identity types shared across the
// gateway: tenants, agents, versions, inputs, outputs, traces, completions,
// experiments, deployments and views. Types here are plain data; all
// behavior beyond identity derivation lives in the service packages.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// IDPrefix is the namespace prepended to every externally visible identifier.
const IDPrefix = "anotherai"

// Kind identifies the entity class of an external identifier.
type Kind string

// External identifier kinds.
const (
	KindVersion    Kind = "version"
	KindDeployment Kind = "deployment"
	KindExperiment Kind = "experiment"
	KindCompletion Kind = "completion"
	KindInput      Kind = "input"
	KindOutput     Kind = "output"
	KindAnnotation Kind = "annotation"
	KindAgent      Kind = "agent"
)

// ExternalID formats an identifier for the API boundary: "anotherai/<kind>/<id>".
func ExternalID(kind Kind, id string) string {
	return fmt.Sprintf("%s/%s/%s", IDPrefix, kind, id)
}

// ParseExternalID strips the "anotherai/<kind>/" prefix from an external
// identifier. Bare identifiers (no prefix) are returned unchanged so callers
// may pass either form.
func ParseExternalID(kind Kind, s string) string {
	prefix := IDPrefix + "/" + string(kind) + "/"
	return strings.TrimPrefix(s, prefix)
}

// NewCompletionID returns a fresh UUIDv7 completion identifier.
// UUIDv7 embeds a millisecond-precision timestamp, which doubles as the
// completion's created_at (see CompletionCreatedAt).
func NewCompletionID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the entropy source is broken; there is no
		// reasonable recovery at this level.
		panic(fmt.Sprintf("uuid v7 generation failed: %v", err))
	}
	return id
}

// ParseCompletionID parses and validates a UUIDv7 completion identifier.
// The "anotherai/completion/" prefix is accepted and stripped.
func ParseCompletionID(s string) (uuid.UUID, error) {
	raw := ParseExternalID(KindCompletion, s)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid completion id %q: %w", s, err)
	}
	if id.Version() != 7 {
		return uuid.Nil, fmt.Errorf("completion id %q is not a UUIDv7", s)
	}
	return id, nil
}

// CompletionCreatedAt extracts the millisecond timestamp embedded in a
// UUIDv7 completion identifier.
func CompletionCreatedAt(id uuid.UUID) time.Time {
	sec, nsec := id.Time().UnixTime()
	return time.Unix(sec, nsec).UTC()
}

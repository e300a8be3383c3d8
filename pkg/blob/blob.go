// Package blob stores request file payloads content-addressed by SHA-256.
// Uploading the same bytes twice yields the same key, so duplicate files
// across completions are stored once.
package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"github.com/anotherai-dev/anotherai/pkg/apperr"
	"github.com/anotherai-dev/anotherai/pkg/config"
)

// MaxBlobSize caps uploads at 20 MiB.
const MaxBlobSize = 20 << 20

// Store is the content-addressed blob store.
type Store interface {
	// Put stores the payload and returns its content key. Payloads over
	// MaxBlobSize are rejected with entity_too_large.
	Put(ctx context.Context, tenantUID int64, contentType string, data []byte) (string, error)
	// Get returns the payload and content type for a key.
	Get(ctx context.Context, tenantUID int64, key string) ([]byte, string, error)
}

// New selects a store implementation from the configured DSN: empty or
// "memory://" keeps blobs in-process, "s3://region" uses S3 with the
// configured container as the bucket.
func New(ctx context.Context, cfg config.BlobConfig) (Store, error) {
	switch {
	case cfg.DSN == "", strings.HasPrefix(cfg.DSN, "memory://"):
		return NewMemory(), nil
	case strings.HasPrefix(cfg.DSN, "s3://"):
		u, err := url.Parse(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("parsing blob dsn: %w", err)
		}
		return NewS3(ctx, u.Host, cfg.ContainerName)
	default:
		return nil, fmt.Errorf("unsupported blob dsn %q: scheme must be memory:// or s3://", cfg.DSN)
	}
}

// contentKey derives the content-addressed object key. The tenant uid is
// part of the key so tenants never share objects.
func contentKey(tenantUID int64, data []byte) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%d/%s", tenantUID, hex.EncodeToString(sum[:]))
}

func checkSize(data []byte) error {
	if len(data) > MaxBlobSize {
		return apperr.EntityTooLarge("file is %d bytes, the limit is %d", len(data), MaxBlobSize)
	}
	return nil
}

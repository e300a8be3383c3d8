package runner

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/anotherai-dev/anotherai/pkg/apperr"
	"github.com/anotherai-dev/anotherai/pkg/models"
)

// FileStore offloads inline file payloads to durable storage; satisfied by
// the blob store.
type FileStore interface {
	Put(ctx context.Context, tenantUID int64, contentType string, data []byte) (string, error)
}

// offloadFiles uploads inline file data and replaces it with the storage
// key. Runs after template substitution, so templated data values are
// already resolved, and after input hashing, so the input id covers the
// original bytes.
func (r *Runner) offloadFiles(ctx context.Context, tenantUID int64, messages []models.Message) error {
	if r.files == nil {
		return nil
	}
	for mi := range messages {
		for fi := range messages[mi].Files {
			f := &messages[mi].Files[fi]
			if f.StorageURL != "" {
				continue
			}
			if f.Data == "" {
				if f.URL == "" {
					return apperr.InvalidFile("file has neither data nor url")
				}
				continue
			}
			contentType, raw, err := decodeFileData(f)
			if err != nil {
				return err
			}
			key, err := r.files.Put(ctx, tenantUID, contentType, raw)
			if err != nil {
				return err
			}
			f.StorageURL = key
			f.Data = ""
		}
	}
	return nil
}

// decodeFileData accepts raw base64 or an RFC 2397 data URL.
func decodeFileData(f *models.File) (string, []byte, error) {
	contentType := f.ContentType
	payload := f.Data

	if strings.HasPrefix(payload, "data:") {
		meta, rest, ok := strings.Cut(payload[len("data:"):], ",")
		if !ok {
			return "", nil, apperr.InvalidFile("malformed data url")
		}
		if !strings.HasSuffix(meta, ";base64") {
			return "", nil, apperr.InvalidFile("data url must be base64 encoded")
		}
		if contentType == "" {
			contentType = strings.TrimSuffix(meta, ";base64")
		}
		payload = rest
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, apperr.InvalidFile("invalid base64 file data: %v", err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return contentType, raw, nil
}

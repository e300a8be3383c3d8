package runner

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anotherai-dev/anotherai/pkg/apperr"
	"github.com/anotherai-dev/anotherai/pkg/models"
	"github.com/anotherai-dev/anotherai/pkg/provider"
)

type captureFileStore struct {
	keys []string
	puts [][]byte
}

func (s *captureFileStore) Put(ctx context.Context, tenantUID int64, contentType string, data []byte) (string, error) {
	s.puts = append(s.puts, data)
	key := "blob-key-" + contentType
	s.keys = append(s.keys, key)
	return key, nil
}

func TestOffloadFiles_InlineData(t *testing.T) {
	store := &captureFileStore{}
	r := New(Options{
		Adapters: &fakeSource{adapters: map[provider.Provider]*fakeAdapter{provider.Groq: {text: "ok"}}},
		Emitter:  &captureEmitter{},
		Files:    store,
	})

	payload := []byte("fake png bytes")
	messages := []models.Message{{
		Role:    models.RoleUser,
		Content: "describe this",
		Files: []models.File{{
			ContentType: "image/png",
			Data:        base64.StdEncoding.EncodeToString(payload),
		}},
	}}

	require.NoError(t, r.offloadFiles(context.Background(), 1, messages))

	f := messages[0].Files[0]
	assert.Empty(t, f.Data, "inline data is replaced by the storage key")
	assert.Equal(t, "blob-key-image/png", f.StorageURL)
	require.Len(t, store.puts, 1)
	assert.Equal(t, payload, store.puts[0])
}

func TestRun_TemplatedFileData(t *testing.T) {
	store := &captureFileStore{}
	r := New(Options{
		Adapters: &fakeSource{adapters: map[provider.Provider]*fakeAdapter{provider.Groq: {text: "a cat"}}},
		Emitter:  &captureEmitter{},
		Files:    store,
	})

	payload := []byte("fake png bytes")
	req := RunRequest{
		TenantUID: 1,
		AgentID:   "vision-agent",
		Version:   models.Version{Model: "llama-3.3-70b"},
		Input: models.AgentInput{
			Messages: []models.Message{{
				Role:    models.RoleUser,
				Content: "describe this",
				Files:   []models.File{{ContentType: "image/png", Data: "{{ img }}"}},
			}},
			Variables: map[string]any{"img": base64.StdEncoding.EncodeToString(payload)},
		},
		UseCache: UseCacheNever,
	}

	// File data arriving through a template variable is resolved before
	// offload, not rejected as invalid base64.
	record, err := r.Run(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, store.puts, 1)
	assert.Equal(t, payload, store.puts[0])
	require.NotEmpty(t, record.Messages)
	f := record.Messages[0].Files[0]
	assert.Empty(t, f.Data)
	assert.Equal(t, "blob-key-image/png", f.StorageURL)
}

func TestOffloadFiles_DataURL(t *testing.T) {
	store := &captureFileStore{}
	r := New(Options{Adapters: &fakeSource{}, Emitter: &captureEmitter{}, Files: store})

	payload := base64.StdEncoding.EncodeToString([]byte("hello"))
	messages := []models.Message{{
		Role:  models.RoleUser,
		Files: []models.File{{Data: "data:text/plain;base64," + payload}},
	}}

	require.NoError(t, r.offloadFiles(context.Background(), 1, messages))
	assert.Equal(t, "blob-key-text/plain", messages[0].Files[0].StorageURL)
}

func TestOffloadFiles_RemoteURLUntouched(t *testing.T) {
	store := &captureFileStore{}
	r := New(Options{Adapters: &fakeSource{}, Emitter: &captureEmitter{}, Files: store})

	messages := []models.Message{{
		Role:  models.RoleUser,
		Files: []models.File{{URL: "https://example.com/chart.png"}},
	}}

	require.NoError(t, r.offloadFiles(context.Background(), 1, messages))
	assert.Empty(t, store.puts)
	assert.Empty(t, messages[0].Files[0].StorageURL)
}

func TestOffloadFiles_EmptyFileRejected(t *testing.T) {
	store := &captureFileStore{}
	r := New(Options{Adapters: &fakeSource{}, Emitter: &captureEmitter{}, Files: store})

	messages := []models.Message{{
		Role:  models.RoleUser,
		Files: []models.File{{ContentType: "image/png"}},
	}}

	err := r.offloadFiles(context.Background(), 1, messages)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInvalidFile, apperr.CodeOf(err))
}

func TestOffloadFiles_NoStoreConfigured(t *testing.T) {
	r := New(Options{Adapters: &fakeSource{}, Emitter: &captureEmitter{}})

	messages := []models.Message{{
		Role:  models.RoleUser,
		Files: []models.File{{Data: "aGVsbG8="}},
	}}
	require.NoError(t, r.offloadFiles(context.Background(), 1, messages))
	assert.Empty(t, messages[0].Files[0].StorageURL)
}

func TestDecodeFileData_InvalidBase64(t *testing.T) {
	_, _, err := decodeFileData(&models.File{Data: "not base64!!"})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInvalidFile, apperr.CodeOf(err))
}

func TestDecodeFileData_MalformedDataURL(t *testing.T) {
	_, _, err := decodeFileData(&models.File{Data: "data:image/png"})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInvalidFile, apperr.CodeOf(err))
}

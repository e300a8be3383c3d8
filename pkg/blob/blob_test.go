package blob

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anotherai-dev/anotherai/pkg/apperr"
	"github.com/anotherai-dev/anotherai/pkg/config"
)

func TestMemoryPutGet(t *testing.T) {
	store := NewMemory()

	key, err := store.Put(context.Background(), 1, "image/png", []byte("pixels"))
	require.NoError(t, err)

	data, contentType, err := store.Get(context.Background(), 1, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("pixels"), data)
	assert.Equal(t, "image/png", contentType)
}

func TestPutIsContentAddressed(t *testing.T) {
	store := NewMemory()

	k1, err := store.Put(context.Background(), 1, "image/png", []byte("same bytes"))
	require.NoError(t, err)
	k2, err := store.Put(context.Background(), 1, "image/png", []byte("same bytes"))
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	k3, err := store.Put(context.Background(), 1, "image/png", []byte("other bytes"))
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)
}

func TestKeysAreTenantScoped(t *testing.T) {
	k1 := contentKey(1, []byte("same bytes"))
	k2 := contentKey(2, []byte("same bytes"))
	assert.NotEqual(t, k1, k2)
}

func TestPutRejectsOversizedPayload(t *testing.T) {
	store := NewMemory()

	_, err := store.Put(context.Background(), 1, "application/octet-stream", make([]byte, MaxBlobSize+1))
	require.Error(t, err)
	assert.Equal(t, apperr.CodeEntityTooLarge, apperr.CodeOf(err))
}

func TestGetUnknownKey(t *testing.T) {
	store := NewMemory()

	_, _, err := store.Get(context.Background(), 1, "1/deadbeef")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeObjectNotFound, apperr.CodeOf(err))
}

func TestNew_SchemeSelection(t *testing.T) {
	store, err := New(context.Background(), config.BlobConfig{DSN: "memory://"})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, store)

	_, err = New(context.Background(), config.BlobConfig{DSN: "ftp://nope"})
	require.Error(t, err)
}

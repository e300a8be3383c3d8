package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anotherai-dev/anotherai/pkg/apperr"
)

func TestCursorRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.UTC)
	cursor := encodeCursor(at)

	decoded, err := decodeCursor(cursor)
	require.NoError(t, err)
	assert.True(t, at.Equal(decoded))
}

func TestDecodeCursor_Empty(t *testing.T) {
	decoded, err := decodeCursor("")
	require.NoError(t, err)
	assert.True(t, decoded.IsZero())
}

func TestDecodeCursor_Invalid(t *testing.T) {
	for _, cursor := range []string{"not base64 ???", "bm90IGEgdGltZXN0YW1w"} {
		_, err := decodeCursor(cursor)
		require.Error(t, err)
		assert.Equal(t, apperr.CodeBadRequest, apperr.CodeOf(err))
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)

	ups, downs := 0, 0
	for _, e := range entries {
		switch {
		case len(e.Name()) > 7 && e.Name()[len(e.Name())-7:] == ".up.sql":
			ups++
		case len(e.Name()) > 9 && e.Name()[len(e.Name())-9:] == ".down.sql":
			downs++
		}
	}
	assert.Positive(t, ups, "expected embedded up migrations")
	assert.Equal(t, ups, downs, "every up migration needs a matching down")
}

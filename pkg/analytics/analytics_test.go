package analytics

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadonlyPassword_DeterministicPerTenant(t *testing.T) {
	a := &Store{salt: "salt-1"}
	b := &Store{salt: "salt-1"}

	assert.Equal(t, a.readonlyPassword(42), b.readonlyPassword(42),
		"same salt and tenant must derive the same password on every pod")
	assert.NotEqual(t, a.readonlyPassword(42), a.readonlyPassword(43))

	other := &Store{salt: "salt-2"}
	assert.NotEqual(t, a.readonlyPassword(42), other.readonlyPassword(42))
	assert.Len(t, a.readonlyPassword(42), 64)
}

func TestReadonlyUserName(t *testing.T) {
	assert.Equal(t, "readonly_42", readonlyUser(42))
}

func TestMigrationFiles_OrderedStems(t *testing.T) {
	stems, err := migrationFiles()
	require.NoError(t, err)
	require.NotEmpty(t, stems)

	for i := 1; i < len(stems); i++ {
		assert.Less(t, stems[i-1], stems[i], "stems must be strictly ordered")
	}
	for _, stem := range stems {
		assert.False(t, strings.HasSuffix(stem, ".sql"))
	}
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements("CREATE TABLE a (x Int64) ENGINE = MergeTree ORDER BY x;\n\nCREATE TABLE b (y String) ENGINE = MergeTree ORDER BY y;\n")
	require.Len(t, stmts, 2)
	assert.True(t, strings.HasPrefix(stmts[0], "CREATE TABLE a"))
	assert.True(t, strings.HasPrefix(stmts[1], "CREATE TABLE b"))
}

package schema

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTables_CreatesModernSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.uimf")
	db, err := Open(path)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, CreateTables(db, IntensityColumnInt64))

	hasModern, err := HasModernSchema(db)
	require.NoError(t, err)
	assert.True(t, hasModern)

	for _, table := range []string{
		TableGlobalParams, TableFrameParamKeys, TableFrameParams,
		TableFrameScans, TableBinIntensities, TableVersionInfo, TableLogEntries,
	} {
		ok, err := tableExists(db, table)
		require.NoError(t, err)
		assert.True(t, ok, "expected table %s to exist", table)
	}
}

func TestCreateTables_IsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.uimf")
	db, err := Open(path)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, CreateTables(db, IntensityColumnInt64))
	require.NoError(t, CreateTables(db, IntensityColumnInt64))
}

func TestHasLegacySchema_FalseOnFreshFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.uimf")
	db, err := Open(path)
	require.NoError(t, err)
	defer db.Close()

	hasLegacy, err := HasLegacySchema(db)
	require.NoError(t, err)
	assert.False(t, hasLegacy)
}

package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"brain/internal/config"
)

func TestOpenAppliesMigrationsAndIsReopenable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brain.db")
	log := zap.NewNop()

	st, err := Open(config.StoreConfig{Path: path}, log)
	require.NoError(t, err)

	version, err := st.schemaVersion()
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)

	for _, table := range []string{"memories", "memories_fts", "sessions", "session_events", "executions", "schema_version", "migration_history"} {
		var name string
		err := st.DB.QueryRow(`SELECT name FROM sqlite_master WHERE type IN ('table','view') AND name = ?`, table).Scan(&name)
		assert.NoError(t, err, "expected table %s to exist", table)
	}
	require.NoError(t, st.Close())

	// Reopening an already-migrated store must not re-apply or fail.
	st2, err := Open(config.StoreConfig{Path: path}, log)
	require.NoError(t, err)
	defer st2.Close()
	version2, err := st2.schemaVersion()
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version2)
}

func TestRunMigrationsRefusesFutureSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brain.db")
	log := zap.NewNop()

	st, err := Open(config.StoreConfig{Path: path}, log)
	require.NoError(t, err)
	_, err = st.DB.Exec(`UPDATE schema_version SET version = ? WHERE version = ?`, CurrentSchemaVersion+1, CurrentSchemaVersion)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	_, err = Open(config.StoreConfig{Path: path}, log)
	assert.Error(t, err, "opening a store whose recorded schema version is newer than this binary knows must fail")
}

func TestChecksumIsStableAndContentSensitive(t *testing.T) {
	a := checksum("CREATE TABLE x (y INTEGER)")
	b := checksum("CREATE TABLE x (y INTEGER)")
	c := checksum("CREATE TABLE x (y TEXT)")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

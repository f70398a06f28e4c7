package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *LibSQLStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLibSQLStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store { return newTestStore(t) })
}

func TestOpen_LibSQL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "stepflow.db")
	s, err := Open(context.Background(), Options{Driver: DriverLibSQL, Path: path})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.ListWorkflows(context.Background(), WorkflowFilter{})
	assert.NoError(t, err)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Options{Driver: "mongo"})
	assert.ErrorContains(t, err, "unknown store driver")
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements(`
-- header comment
CREATE TABLE a (id TEXT);
-- only a comment;
CREATE INDEX i ON a(id);
`)
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "CREATE TABLE a")
	assert.Contains(t, stmts[1], "CREATE INDEX i")
}

func TestLoadMigrations(t *testing.T) {
	for _, dialect := range []string{"libsql", "postgres"} {
		ms, err := loadMigrations(dialect)
		require.NoError(t, err, dialect)
		require.NotEmpty(t, ms)
		assert.Equal(t, 1, ms[0].version)
		assert.Equal(t, "initial_schema", ms[0].name)
		assert.Contains(t, ms[0].sql, "workflow_runs")
	}

	_, err := loadMigrations("oracle")
	assert.Error(t, err)
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))

	var applied int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM schema_version`).Scan(&applied))
	ms, err := loadMigrations("libsql")
	require.NoError(t, err)
	assert.Equal(t, len(ms), applied)
}

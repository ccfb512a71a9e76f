package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_MemoryDefaults(t *testing.T) {
	database, err := Open()
	require.NoError(t, err)
	defer database.Close()

	_, err = database.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT);")
	require.NoError(t, err)

	_, err = database.Exec("INSERT INTO t (v) VALUES (?)", "x")
	require.NoError(t, err)

	var count int
	require.NoError(t, database.Get(&count, "SELECT COUNT(*) FROM t"))
	assert.Equal(t, 1, count)
}

func TestOpen_FileCreatesParent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "history.db")

	database, err := Open(WithPath(dbPath), WithMaxOpenConns(1))
	require.NoError(t, err)
	defer database.Close()

	assert.DirExists(t, filepath.Dir(dbPath))
	assert.FileExists(t, dbPath)
}

func TestOpen_Schema(t *testing.T) {
	schema := `CREATE TABLE IF NOT EXISTS runs (id TEXT PRIMARY KEY);`
	dbPath := filepath.Join(t.TempDir(), "history.db")

	database, err := Open(WithPath(dbPath), WithSchema(schema))
	require.NoError(t, err)
	_, err = database.Exec("INSERT INTO runs (id) VALUES ('a')")
	require.NoError(t, err)
	require.NoError(t, database.Close())

	// reopening applies the schema again without losing rows
	database, err = Open(WithPath(dbPath), WithSchema(schema))
	require.NoError(t, err)
	defer database.Close()

	var count int
	require.NoError(t, database.Get(&count, "SELECT COUNT(*) FROM runs"))
	assert.Equal(t, 1, count)
}

func TestOpen_BadSchema(t *testing.T) {
	_, err := Open(WithSchema("CREATE NONSENSE"))
	assert.Error(t, err)
}

func TestOpen_CustomPragmas(t *testing.T) {
	database, err := Open(WithPragmas("PRAGMA foreign_keys=ON;"))
	require.NoError(t, err)
	defer database.Close()

	_, err = database.Exec("CREATE TABLE t2 (id INTEGER PRIMARY KEY);")
	assert.NoError(t, err)
}

package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileHash_MatchesBytesHash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Foo.cls")
	content := []byte("class Foo {}")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	fileHash, err := FileHash(path)
	require.NoError(t, err)
	assert.Equal(t, BytesHash(content), fileHash)
	assert.Equal(t, BytesHash(content), BytesHash(content))
	assert.NotEqual(t, BytesHash(content), BytesHash([]byte("class Foo { }")))
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "log.json")

	require.NoError(t, WriteFileAtomic(path, []byte(`{}`), 0o644))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(data))

	require.NoError(t, WriteFileAtomic(path, []byte(`{"a":1}`), 0o644))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))

	// no temp files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestMoveFile_ReplacesDestination(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "staging", "a.txt")
	dst := filepath.Join(dir, "live", "a.txt")
	require.NoError(t, EnsureParent(src))
	require.NoError(t, os.WriteFile(src, []byte("new"), 0o644))
	require.NoError(t, EnsureParent(dst))
	require.NoError(t, os.WriteFile(dst, []byte("old"), 0o644))

	require.NoError(t, MoveFile(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
	assert.NoFileExists(t, src)
}

package packager

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/openmined/forcesync/internal/archive"
	"github.com/openmined/forcesync/internal/changelog"
	"github.com/openmined/forcesync/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	packager *Packager
	store    *changelog.Store
	srcDir   string
	stageDir string
}

func newTestEnv(t *testing.T, modify ...func(*Options)) *testEnv {
	t.Helper()

	root := t.TempDir()
	srcDir := filepath.Join(root, "src")
	require.NoError(t, os.MkdirAll(srcDir, 0o755))

	store, err := changelog.Load(filepath.Join(root, "changes", "log.json"))
	require.NoError(t, err)

	opts := Options{
		SourceDir:   srcDir,
		StagingDir:  filepath.Join(root, "tmp"),
		Concurrency: 4,
	}
	for _, fn := range modify {
		fn(&opts)
	}

	p, err := New(store, opts)
	require.NoError(t, err)

	return &testEnv{packager: p, store: store, srcDir: srcDir, stageDir: opts.StagingDir}
}

func (e *testEnv) write(t *testing.T, relPath, content string) string {
	t.Helper()
	path := filepath.Join(e.srcDir, filepath.FromSlash(relPath))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (e *testEnv) read(t *testing.T, relPath string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(e.srcDir, filepath.FromSlash(relPath)))
	require.NoError(t, err)
	return string(data)
}

// archiveFiles reads an archive into path -> content.
func archiveFiles(t *testing.T, data []byte) map[string]string {
	t.Helper()
	entries, err := archive.Read(data)
	require.NoError(t, err)

	files := make(map[string]string, len(entries))
	for _, e := range entries {
		files[e.Path] = string(e.Data)
	}
	return files
}

func buildArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var entries []archive.Entry
	for relPath, content := range files {
		entries = append(entries, archive.Entry{Path: archive.Rooted(relPath), Data: []byte(content)})
	}
	data, err := archive.Build(entries)
	require.NoError(t, err)
	return data
}

func TestNew_Validation(t *testing.T) {
	store, err := changelog.Load(filepath.Join(t.TempDir(), "log.json"))
	require.NoError(t, err)

	_, err = New(nil, Options{SourceDir: "src", StagingDir: "tmp"})
	assert.Error(t, err)

	_, err = New(store, Options{StagingDir: "tmp"})
	assert.Error(t, err)

	_, err = New(store, Options{SourceDir: "src"})
	assert.Error(t, err)

	p, err := New(store, Options{SourceDir: "src", StagingDir: "tmp"})
	require.NoError(t, err)
	assert.Equal(t, DefaultConcurrency(), p.Options().Concurrency)
	assert.NotEmpty(t, p.Options().APIVersion)
}

func TestWalk(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "classes/Foo.cls", "class Foo {}")
	env.write(t, "classes/Foo.cls-meta.xml", "<meta/>")
	env.write(t, "pages/Home.page", "<apex:page/>")
	env.write(t, ".git/config", "[core]")
	env.write(t, ".DS_Store", "junk")

	seen := make(map[string]string)
	for item, err := range env.packager.Walk() {
		require.NoError(t, err)
		seen[item.RelPath] = item.Key
		assert.NotNil(t, item.Info)
	}

	assert.Equal(t, map[string]string{
		"classes/Foo.cls":          "Foo.cls",
		"classes/Foo.cls-meta.xml": "Foo.cls-meta.xml",
		"pages/Home.page":          "Home.page",
	}, seen)

	t.Run("stops early", func(t *testing.T) {
		count := 0
		for range env.packager.Walk() {
			count++
			break
		}
		assert.Equal(t, 1, count)
	})

	t.Run("restartable", func(t *testing.T) {
		count := 0
		for _, err := range env.packager.Walk() {
			require.NoError(t, err)
			count++
		}
		assert.Equal(t, len(seen), count)
	})
}

func TestWalk_MissingSourceYieldsError(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.RemoveAll(env.srcDir))

	var errs []error
	for _, err := range env.packager.Walk() {
		if err != nil {
			errs = append(errs, err)
		}
	}
	assert.Len(t, errs, 1)
}

func TestHash_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	path := env.write(t, "classes/Foo.cls", "class Foo {}")

	info, err := os.Stat(path)
	require.NoError(t, err)

	first, err := env.packager.hash(path, info)
	require.NoError(t, err)
	second, err := env.packager.hash(path, info)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, utils.BytesHash([]byte("class Foo {}")), first)

	fileHash, err := utils.FileHash(path)
	require.NoError(t, err)
	assert.Equal(t, fileHash, first)
}

func TestResult_Summarize(t *testing.T) {
	results := []Result{
		{Status: StatusApplied},
		{Status: StatusApplied},
		{Status: StatusSkipped, Reason: ReasonLocalConflict},
		{Status: StatusSkipped, Reason: ReasonIgnored},
		{Status: StatusFailed},
	}

	assert.Equal(t, Summary{Applied: 2, Skipped: 2, Conflicts: 1, Failed: 1}, Summarize(results))
	assert.True(t, results[2].IsConflict())
	assert.False(t, results[3].IsConflict())
	assert.Equal(t, "skipped", StatusSkipped.String())
}

func TestDefaultConcurrency(t *testing.T) {
	n := DefaultConcurrency()
	assert.GreaterOrEqual(t, n, 2)
	assert.LessOrEqual(t, n, 16)
}


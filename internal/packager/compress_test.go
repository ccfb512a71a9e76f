package packager

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/openmined/forcesync/internal/archive"
	"github.com/openmined/forcesync/internal/manifest"
	"github.com/openmined/forcesync/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompress_FirstRunThenNothingChanged(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "classes/Foo.cls", "class Foo {}")
	ctx := context.Background()

	out, err := env.packager.Compress(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Foo.cls"}, out.Items)
	assert.Equal(t, 2, out.Entries)
	assert.Positive(t, out.Size())

	files := archiveFiles(t, out.Archive)
	assert.Equal(t, "class Foo {}", files["unpackaged/classes/Foo.cls"])
	assert.Contains(t, files, "unpackaged/package.xml")

	entry := env.store.Get("Foo.cls")
	require.NotNil(t, entry)
	require.NotNil(t, entry.Local)
	assert.Equal(t, utils.BytesHash([]byte("class Foo {}")), entry.Local.Hash)
	assert.False(t, env.store.HasChanged("Foo.cls"))

	_, err = env.packager.Compress(ctx)
	assert.ErrorIs(t, err, ErrNothingChanged)
}

func TestCompress_OnlyChangedItemsSelected(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "classes/Foo.cls", "class Foo {}")
	env.write(t, "classes/Bar.cls", "class Bar {}")
	env.write(t, "triggers/Baz.trigger", "trigger Baz on Account (before insert) {}")
	ctx := context.Background()

	out, err := env.packager.Compress(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bar.cls", "Baz.trigger", "Foo.cls"}, out.Items)

	env.write(t, "classes/Bar.cls", "class Bar { Integer x; }")

	out, err = env.packager.Compress(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bar.cls"}, out.Items)

	files := archiveFiles(t, out.Archive)
	assert.Len(t, files, 2)
	assert.Equal(t, "class Bar { Integer x; }", files["unpackaged/classes/Bar.cls"])
}

func TestCompress_RestoredContentIsNotAChange(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "classes/Foo.cls", "class Foo {}")
	ctx := context.Background()

	_, err := env.packager.Compress(ctx)
	require.NoError(t, err)

	env.write(t, "classes/Foo.cls", "class Foo { }")
	env.write(t, "classes/Foo.cls", "class Foo {}")

	_, err = env.packager.Compress(ctx)
	assert.ErrorIs(t, err, ErrNothingChanged)
}

func TestCompress_Sidecars(t *testing.T) {
	env := newTestEnv(t, func(o *Options) {
		o.CreateMetaXML = true
		o.APIVersion = "58.0"
	})
	env.write(t, "classes/Foo.cls", "class Foo {}")
	env.write(t, "classes/Bar.cls", "class Bar {}")
	env.write(t, "classes/Bar.cls-meta.xml", "<custom/>")
	env.write(t, "notes/readme.txt", "hello")
	ctx := context.Background()

	out, err := env.packager.Compress(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bar.cls", "Foo.cls", "readme.txt"}, out.Items)

	files := archiveFiles(t, out.Archive)
	assert.Equal(t, "<custom/>", files["unpackaged/classes/Bar.cls-meta.xml"])
	require.Contains(t, files, "unpackaged/classes/Foo.cls-meta.xml")
	assert.Contains(t, files["unpackaged/classes/Foo.cls-meta.xml"], "<apiVersion>58.0</apiVersion>")
	assert.Contains(t, files["unpackaged/classes/Foo.cls-meta.xml"], "<status>Active</status>")
	assert.NotContains(t, files, "unpackaged/notes/readme.txt-meta.xml", "unknown types get no generated sidecar")

	assert.Nil(t, env.store.Get("Bar.cls-meta.xml"), "sidecars are not tracked")

	// a sidecar edit alone selects nothing
	env.write(t, "classes/Bar.cls-meta.xml", "<custom version=\"2\"/>")
	_, err = env.packager.Compress(ctx)
	assert.ErrorIs(t, err, ErrNothingChanged)
}

func TestCompress_NoGeneratedSidecarsByDefault(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "classes/Foo.cls", "class Foo {}")

	out, err := env.packager.Compress(context.Background())
	require.NoError(t, err)

	files := archiveFiles(t, out.Archive)
	assert.NotContains(t, files, "unpackaged/classes/Foo.cls-meta.xml")
}

func TestCompress_Manifest(t *testing.T) {
	t.Run("from source folder", func(t *testing.T) {
		env := newTestEnv(t)
		env.write(t, "classes/Foo.cls", "class Foo {}")
		custom := manifest.Default("40.0")
		require.NoError(t, custom.Save(filepath.Join(env.srcDir, manifest.FileName)))

		out, err := env.packager.Compress(context.Background())
		require.NoError(t, err)

		files := archiveFiles(t, out.Archive)
		assert.Contains(t, files["unpackaged/package.xml"], "<version>40.0</version>")
		assert.Nil(t, env.store.Get(manifest.FileName), "the manifest is not tracked")
	})

	t.Run("from options", func(t *testing.T) {
		desc := &manifest.Descriptor{
			Types:   []manifest.Type{{Name: "ApexClass", Members: []string{"Foo"}}},
			Version: "50.0",
		}
		env := newTestEnv(t, func(o *Options) { o.Manifest = desc })
		env.write(t, "classes/Foo.cls", "class Foo {}")

		out, err := env.packager.Compress(context.Background())
		require.NoError(t, err)

		parsed, err := manifest.FromXML([]byte(archiveFiles(t, out.Archive)["unpackaged/package.xml"]))
		require.NoError(t, err)
		assert.Equal(t, "50.0", parsed.Version)
		assert.True(t, parsed.Includes("ApexClass", "Foo"))
	})

	t.Run("manifest edit alone is nothing changed", func(t *testing.T) {
		env := newTestEnv(t)
		env.write(t, "classes/Foo.cls", "class Foo {}")
		ctx := context.Background()

		_, err := env.packager.Compress(ctx)
		require.NoError(t, err)

		require.NoError(t, manifest.Default("41.0").Save(filepath.Join(env.srcDir, manifest.FileName)))
		_, err = env.packager.Compress(ctx)
		assert.ErrorIs(t, err, ErrNothingChanged)
	})
}

func TestCompress_EmptyTree(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.packager.Compress(context.Background())
	assert.ErrorIs(t, err, ErrNothingChanged)
}

func TestCompress_MissingSourceFolder(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.RemoveAll(env.srcDir))

	_, err := env.packager.Compress(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCompress_IgnoredItems(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "classes/Foo.cls", "class Foo {}")
	env.write(t, "classes/Foo.conflict.cls", "class Foo { remote }")
	env.write(t, "classes/Scratch.cls", "class Scratch {}")
	env.write(t, IgnoreFileName, "classes/Scratch.cls\n")

	out, err := env.packager.Compress(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Foo.cls"}, out.Items)
	assert.Nil(t, env.store.Get("Scratch.cls"))
}

func TestCompress_DuplicateKey(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "classes/Foo.cls", "class Foo {}")
	env.write(t, "legacy/Foo.cls", "class Foo { old }")

	_, err := env.packager.Compress(context.Background())
	assert.ErrorIs(t, err, ErrDuplicateKey)
}

func TestCompress_Cancelled(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "classes/Foo.cls", "class Foo {}")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.packager.Compress(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOutgoing_Revert(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "classes/Foo.cls", "class Foo {}")
	ctx := context.Background()

	out, err := env.packager.Compress(ctx)
	require.NoError(t, err)
	require.False(t, env.store.HasChanged("Foo.cls"))

	require.NoError(t, out.Revert())
	entry := env.store.Get("Foo.cls")
	require.NotNil(t, entry)
	assert.NotNil(t, entry.Local)
	assert.Nil(t, entry.Remote)
	assert.True(t, env.store.HasChanged("Foo.cls"))

	out, err = env.packager.Compress(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Foo.cls"}, out.Items)
}

func TestOutgoing_RevertKeepsEarlierRemote(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "classes/Foo.cls", "class Foo {}")
	ctx := context.Background()

	_, err := env.packager.Compress(ctx)
	require.NoError(t, err)
	before := env.store.Get("Foo.cls").Remote

	env.write(t, "classes/Foo.cls", "class Foo { edited }")
	out, err := env.packager.Compress(ctx)
	require.NoError(t, err)
	require.NoError(t, out.Revert())

	assert.Equal(t, before, env.store.Get("Foo.cls").Remote)
	assert.True(t, env.store.HasChanged("Foo.cls"))
}

func TestCompress_ArchiveIsReadable(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "staticresources/logo.resource", string([]byte{0x89, 'P', 'N', 'G', 0, 1, 2}))

	out, err := env.packager.Compress(context.Background())
	require.NoError(t, err)

	entries, err := archive.Read(out.Archive)
	require.NoError(t, err)
	for _, e := range entries {
		rel, ok := archive.Unroot(e.Path)
		assert.True(t, ok)
		assert.NotEmpty(t, rel)
	}
}

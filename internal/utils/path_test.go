package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePath(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantError bool
	}{
		{name: "empty path", input: "", wantError: true},
		{name: "relative path", input: "./test", wantError: false},
		{name: "absolute path", input: "/tmp/test", wantError: false},
		{name: "home path", input: "~/test", wantError: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ResolvePath(tt.input)
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, filepath.IsAbs(result))
		})
	}
}

func TestEnsureParent(t *testing.T) {
	file := filepath.Join(t.TempDir(), "a", "b", "c.txt")
	require.NoError(t, EnsureParent(file))
	assert.DirExists(t, filepath.Dir(file))
	assert.False(t, FileExists(file))
	assert.True(t, DirExists(filepath.Dir(file)))

	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	assert.True(t, FileExists(file))
	assert.False(t, DirExists(file))
}

func TestNormPath(t *testing.T) {
	cases := []struct {
		input    string
		expected string
	}{
		{"", "."},
		{"./classes/Foo.cls", "classes/Foo.cls"},
		{"/classes/Foo.cls", "classes/Foo.cls"},
		{"classes\\Foo.cls", "classes/Foo.cls"},
	}
	for _, c := range cases {
		t.Run(c.input, func(t *testing.T) {
			assert.Equal(t, c.expected, NormPath(c.input))
		})
	}
}

func TestIsWithin(t *testing.T) {
	base := filepath.Join("/tmp", "project")
	assert.True(t, IsWithin(base, filepath.Join(base, "src", "a.cls")))
	assert.True(t, IsWithin(base, base))
	assert.False(t, IsWithin(base, filepath.Join(base, "..", "other")))
	assert.False(t, IsWithin(base, "/etc/passwd"))
}

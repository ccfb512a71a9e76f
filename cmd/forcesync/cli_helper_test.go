package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/openmined/forcesync/internal/project"
)

// isolateHome points the user config and log folders at a temp dir.
func isolateHome(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	oldHome, oldConfigDir := home, defaultConfigDir
	home = dir
	defaultConfigDir = filepath.Join(dir, ".forcesync")
	t.Cleanup(func() {
		home = oldHome
		defaultConfigDir = oldConfigDir
	})

	for _, key := range []string{
		"SF_USER", "SF_PASSWORD", "SF_TOKEN", "SF_HOST",
		"FORCESYNC_USERNAME", "FORCESYNC_PASSWORD", "FORCESYNC_TOKEN", "FORCESYNC_SERVER_URL",
		"FORCESYNC_REMOTE", "FORCESYNC_BUCKET", "FORCESYNC_REGION",
	} {
		t.Setenv(key, "")
	}
	return dir
}

// runCLI executes a fresh root command with args and returns its stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	c := newCLI()
	cmd := c.command()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.Execute()
	c.close()
	return out.String(), err
}

func testRoot(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), project.DefaultRoot)
}

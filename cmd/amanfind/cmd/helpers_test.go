package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// isolate points HOME and the user config at temp dirs so tests never
// read or write the developer's real configuration and logs.
func isolate(t *testing.T) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("AMANFIND_EMBEDDINGS_PROVIDER", "")
	t.Setenv("AMANFIND_EMBEDDER", "")
}

// runCLI executes the root command with args and returns stdout and the
// error from Execute.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// newProject creates a project directory holding files (relative path to
// content) and returns its absolute path.
func newProject(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

// indexProject runs a plain one-shot index of dir.
func indexProject(t *testing.T, dir string) string {
	t.Helper()
	out, err := runCLI(t, "-p", dir, "index", "--no-tui")
	require.NoError(t, err, out)
	return out
}

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, body := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0644))
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestBuildCommand(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"app/index.html": "<html><body><p>hi</p></body></html>",
		"app/js/a.js":    "var answer = 42;\n",
	})

	out, err := run(t, "--root", root, "--log-level", "error", "build")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Failed: 0")
	assert.FileExists(t, filepath.Join(root, "build", "js", "app.min.js"))
	assert.FileExists(t, filepath.Join(root, "build", "index.html"))

	require.NoError(t, os.WriteFile(filepath.Join(root, "build", "stale.txt"), []byte("x"), 0644))
	_, err = run(t, "--root", root, "--log-level", "error", "build", "--clean")
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(root, "build", "stale.txt"))
}

func TestBuildCommandFails(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"app/index.html": "<html><body></body></html>",
		"sitebuild.yaml": `categories:
  javascript:
    source: ["app/js/**/*.js"]
    dest: build/js
    required: true
`,
	})

	out, err := run(t, "--root", root, "--log-level", "error", "build")
	assert.ErrorIs(t, err, errBuildFailed)
	assert.Contains(t, out, "required category matched no files")
	assert.Contains(t, out, "Failed: 1")
}

func TestBuildCommandRejectsBadConfig(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"sitebuild.yaml": "concurrency: -1\n",
	})

	_, err := run(t, "--root", root, "--log-level", "error", "build")
	require.Error(t, err)
	assert.NotErrorIs(t, err, errBuildFailed)
}

func TestCleanCommand(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"build/index.html": "old"})

	_, err := run(t, "--root", root, "--log-level", "error", "clean")
	require.NoError(t, err)
	assert.NoDirExists(t, filepath.Join(root, "build"))
}

func TestBadLogFormat(t *testing.T) {
	_, err := run(t, "--root", t.TempDir(), "--log-format", "xml", "clean")
	assert.Error(t, err)
}

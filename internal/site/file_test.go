package site

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kiln/internal/build"
	"github.com/roach88/kiln/internal/value"
)

func fileInput(allow Allow, pairs ...value.Pair) value.Value {
	return value.NewObject(append(pairs, value.P("allow", allow.Value()))...)
}

func sandbox(t *testing.T) (string, Allow) {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	out := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(src, 0o755))
	return dir, Allow{ReadPrefixes: []string{src}, WritePrefixes: []string{out}}
}

func TestReadTextFile(t *testing.T) {
	dir, allow := sandbox(t)
	path := filepath.Join(dir, "src", "a.md")
	require.NoError(t, os.WriteFile(path, []byte("# A"), 0o644))
	r := build.NewRunner()

	res, err := r.Call(context.Background(), ReadTextFile, fileInput(allow, value.P("path", value.String(path))))
	require.NoError(t, err)
	assert.Equal(t, build.StatusOK, res.Status)
	assert.Equal(t, value.String("# A"), res.Value)

	res, err = r.Call(context.Background(), ReadTextFile, fileInput(allow, value.P("path", value.String(filepath.Join(dir, "secret")))))
	require.NoError(t, err)
	assert.Equal(t, build.StatusFailed, res.Status)
	assert.Contains(t, res.Logs, "cannot read")
}

func TestWriteTextFileCreatesParents(t *testing.T) {
	dir, allow := sandbox(t)
	path := filepath.Join(dir, "out", "a", "b", "index.html")
	r := build.NewRunner()

	res, err := r.Call(context.Background(), WriteTextFile, fileInput(allow,
		value.P("path", value.String(path)),
		value.P("data", value.String("<p>hi</p>")),
	))
	require.NoError(t, err)
	require.Equal(t, build.StatusOK, res.Status, res.Logs)
	assert.True(t, value.IsNull(res.Value))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<p>hi</p>", string(data))
}

func TestWriteTextFileOutsideWritePrefix(t *testing.T) {
	dir, allow := sandbox(t)
	r := build.NewRunner()

	res, err := r.Call(context.Background(), WriteTextFile, fileInput(allow,
		value.P("path", value.String(filepath.Join(dir, "src", "x"))),
		value.P("data", value.String("x")),
	))
	require.NoError(t, err)
	assert.Equal(t, build.StatusFailed, res.Status)
	assert.NoFileExists(t, filepath.Join(dir, "src", "x"))
}

func TestCopyFile(t *testing.T) {
	dir, allow := sandbox(t)
	src := filepath.Join(dir, "src", "robots.txt")
	dest := filepath.Join(dir, "out", "robots.txt")
	require.NoError(t, os.WriteFile(src, []byte("User-agent: *"), 0o644))
	r := build.NewRunner()

	res, err := r.Call(context.Background(), CopyFile, fileInput(allow,
		value.P("src", value.String(src)),
		value.P("dest", value.String(dest)),
	))
	require.NoError(t, err)
	require.Equal(t, build.StatusOK, res.Status, res.Logs)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "User-agent: *", string(data))
}

func TestDeleteFile(t *testing.T) {
	dir, allow := sandbox(t)
	path := filepath.Join(dir, "out", "gone.html")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	r := build.NewRunner()
	in := fileInput(allow, value.P("path", value.String(path)))

	res, err := r.Call(context.Background(), DeleteFile, in)
	require.NoError(t, err)
	assert.Equal(t, build.StatusOK, res.Status)
	assert.NoFileExists(t, path)

	// Deleting again is fine.
	res, err = r.Call(context.Background(), DeleteFile, in)
	require.NoError(t, err)
	assert.Equal(t, build.StatusOK, res.Status, res.Logs)
}

func TestFileServicesAreImpure(t *testing.T) {
	for _, svc := range []*build.Service{ReadTextFile, WriteTextFile, CopyFile, DeleteFile} {
		assert.False(t, svc.Pure(), svc.ID())
	}
	for _, svc := range []*build.Service{Markdown, PreprocessPage, ApplyLayout} {
		assert.True(t, svc.Pure(), svc.ID())
	}
}

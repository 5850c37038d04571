package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoad_YAMLAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "kiln.yaml", "output: dist\nlog:\n  level: debug\n")

	cfg, err := Load(p)
	require.NoError(t, err)

	root, err := filepath.Abs(dir)
	require.NoError(t, err)
	assert.Equal(t, root, cfg.Root)
	assert.Equal(t, filepath.Join(root, "dist"), cfg.Output)
	assert.Equal(t, filepath.Join(root, "pages"), cfg.Pages)
	assert.Equal(t, filepath.Join(root, "layouts/page.html"), cfg.Layout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 100*time.Millisecond, cfg.WatchDebounce.Std())
	assert.Equal(t, []string{
		filepath.Join(root, "pages"),
		filepath.Join(root, "layouts"),
		filepath.Join(root, "static"),
		filepath.Join(root, "styles"),
	}, cfg.ReadPrefixes)
}

func TestLoad_YAMLFull(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "site.yml", `
root: site
pages: content
layout: /abs/layout.html
output: out
readPrefixes: [content, /abs]
watchDebounce: 250ms
metrics:
  enabled: true
  listen: 0.0.0.0:9100
tracing:
  enabled: true
journal:
  path: kiln.db
`)

	cfg, err := Load(p)
	require.NoError(t, err)

	root := filepath.Join(dir, "site")
	assert.Equal(t, root, cfg.Root)
	assert.Equal(t, filepath.Join(root, "content"), cfg.Pages)
	assert.Equal(t, "/abs/layout.html", cfg.Layout)
	assert.Equal(t, []string{filepath.Join(root, "content"), "/abs"}, cfg.ReadPrefixes)
	assert.Equal(t, 250*time.Millisecond, cfg.WatchDebounce.Std())
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "0.0.0.0:9100", cfg.Metrics.Listen)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, filepath.Join(root, "kiln.db"), cfg.Journal.Path)
}

func TestLoad_YAMLUnknownField(t *testing.T) {
	p := writeFile(t, t.TempDir(), "kiln.yaml", "outptu: dist\n")

	_, err := Load(p)
	require.Error(t, err)
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrCodeParse, le.Code)
	assert.Contains(t, err.Error(), "outptu")
}

func TestLoad_EmptyYAML(t *testing.T) {
	p := writeFile(t, t.TempDir(), "kiln.yaml", "")

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_CUE(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "kiln.cue", `
pages:  "docs"
output: "build"
watchDebounce: "50ms"
log: {
	level:  "warn"
	format: "json"
}
`)

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.Root, "docs"), cfg.Pages)
	assert.Equal(t, filepath.Join(cfg.Root, "build"), cfg.Output)
	assert.Equal(t, 50*time.Millisecond, cfg.WatchDebounce.Std())
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_CUEErrorHasPosition(t *testing.T) {
	p := writeFile(t, t.TempDir(), "kiln.cue", "pages: \"a\"\noutput: [\n")

	_, err := Load(p)
	require.Error(t, err)
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrCodeParse, le.Code)
	assert.True(t, le.Pos.IsValid())
	assert.Equal(t, p, le.Path)
}

func TestLoad_ValidationFailure(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad level", "log:\n  level: loud\n"},
		{"bad format", "log:\n  format: xml\n"},
		{"bad listen", "metrics:\n  listen: nowhere\n"},
		{"empty read prefix", "readPrefixes: [\"\"]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := writeFile(t, t.TempDir(), "kiln.yaml", tt.content)
			_, err := Load(p)
			require.Error(t, err)
			assert.True(t, IsInvalid(err), "got %v", err)
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, IsNotFound(err))

	p := writeFile(t, t.TempDir(), "kiln.toml", "x = 1")
	_, err = Load(p)
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrCodeUnsupported, le.Code)
}

func TestFind(t *testing.T) {
	dir := t.TempDir()
	_, err := Find(dir)
	assert.True(t, IsNotFound(err))

	writeFile(t, dir, "kiln.cue", "")
	writeFile(t, dir, "kiln.yml", "")
	p, err := Find(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "kiln.yml"), p)
}

func TestDuration_Text(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1.5s")))
	assert.Equal(t, 1500*time.Millisecond, d.Std())

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1.5s", string(text))

	assert.Error(t, d.UnmarshalText([]byte("soon")))
}

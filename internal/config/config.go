// Package config loads and validates kiln project configuration.
//
// A config file is YAML (.yaml, .yml) or CUE (.cue). Relative paths resolve
// against Root, and Root itself resolves against the directory holding the
// config file.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
)

// Default file names probed when no --config flag is given, in order.
var DefaultFiles = []string{"kiln.yaml", "kiln.yml", "kiln.cue"}

// Config describes one site project.
type Config struct {
	// Root is the project directory. Every other relative path is joined to it.
	Root string `yaml:"root" json:"root" validate:"required"`

	// Pages holds Markdown sources; each becomes one HTML page.
	Pages string `yaml:"pages" json:"pages" validate:"required"`

	// Static files are copied verbatim to Output.
	Static string `yaml:"static" json:"static"`

	// Styles are copied to Output/assets.
	Styles string `yaml:"styles" json:"styles"`

	// Layout is the HTML page layout. Its <main> element receives the page content.
	Layout string `yaml:"layout" json:"layout" validate:"required"`

	// Output is the only directory kiln writes to.
	Output string `yaml:"output" json:"output" validate:"required"`

	// ReadPrefixes limits reads. Defaults to Pages, Static, Styles and the
	// layout's directory.
	ReadPrefixes []string `yaml:"readPrefixes" json:"readPrefixes" validate:"dive,required"`

	// WatchDebounce is how long a watch batch stays open after its first event.
	WatchDebounce Duration `yaml:"watchDebounce" json:"watchDebounce" validate:"gte=0"`

	Log     LogConfig     `yaml:"log" json:"log"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`
	Journal JournalConfig `yaml:"journal" json:"journal"`
}

// LogConfig selects log verbosity and encoding.
type LogConfig struct {
	Level  string `yaml:"level" json:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" json:"format" validate:"oneof=text json"`
}

// MetricsConfig enables the Prometheus endpoint in watch mode.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Listen  string `yaml:"listen" json:"listen" validate:"hostname_port"`
}

// TracingConfig enables span export to stdout.
type TracingConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// JournalConfig enables the SQLite event journal when Path is set.
type JournalConfig struct {
	Path string `yaml:"path" json:"path"`
}

// Duration is a time.Duration written as a Go duration string ("150ms").
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the configuration used for an empty config file.
func Default() Config {
	return Config{
		Root:          ".",
		Pages:         "pages",
		Static:        "static",
		Styles:        "styles",
		Layout:        "layouts/page.html",
		Output:        "public",
		WatchDebounce: Duration(100 * time.Millisecond),
		Log:           LogConfig{Level: "info", Format: "text"},
		Metrics:       MetricsConfig{Listen: "127.0.0.1:9464"},
	}
}

// applyDefaults fills every unset field from Default.
func (c *Config) applyDefaults() {
	d := Default()
	setDefault(&c.Root, d.Root)
	setDefault(&c.Pages, d.Pages)
	setDefault(&c.Static, d.Static)
	setDefault(&c.Styles, d.Styles)
	setDefault(&c.Layout, d.Layout)
	setDefault(&c.Output, d.Output)
	setDefault(&c.Log.Level, d.Log.Level)
	setDefault(&c.Log.Format, d.Log.Format)
	setDefault(&c.Metrics.Listen, d.Metrics.Listen)
	if c.WatchDebounce == 0 {
		c.WatchDebounce = d.WatchDebounce
	}
}

func setDefault(field *string, def string) {
	if *field == "" {
		*field = def
	}
}

// resolve makes every path absolute and fills ReadPrefixes.
// dir is the directory of the config file.
func (c *Config) resolve(dir string) error {
	root := c.Root
	if !filepath.IsAbs(root) {
		root = filepath.Join(dir, root)
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve root: %w", err)
	}
	c.Root = root

	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return filepath.Clean(p)
		}
		return filepath.Join(root, p)
	}
	c.Pages = abs(c.Pages)
	c.Layout = abs(c.Layout)
	c.Output = abs(c.Output)
	if c.Static != "" {
		c.Static = abs(c.Static)
	}
	if c.Styles != "" {
		c.Styles = abs(c.Styles)
	}
	if c.Journal.Path != "" {
		c.Journal.Path = abs(c.Journal.Path)
	}

	if len(c.ReadPrefixes) == 0 {
		c.ReadPrefixes = []string{c.Pages, filepath.Dir(c.Layout)}
		if c.Static != "" {
			c.ReadPrefixes = append(c.ReadPrefixes, c.Static)
		}
		if c.Styles != "" {
			c.ReadPrefixes = append(c.ReadPrefixes, c.Styles)
		}
	} else {
		for i, p := range c.ReadPrefixes {
			c.ReadPrefixes[i] = abs(p)
		}
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return &LoadError{Code: ErrCodeInvalid, Message: err.Error(), Err: err}
	}
	return nil
}

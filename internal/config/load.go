package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

// Load reads the config file at path, applies defaults, validates the
// result and resolves its paths.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: "config file not found", Path: path, Err: err}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: err.Error(), Path: path, Err: err}
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = decodeYAML(data, &cfg)
	case ".cue":
		err = decodeCUE(path, data, &cfg)
	default:
		return nil, &LoadError{Code: ErrCodeUnsupported, Message: fmt.Sprintf("unsupported config extension %q", ext), Path: path}
	}
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.Path = path
			return nil, le
		}
		return nil, &LoadError{Code: ErrCodeParse, Message: err.Error(), Path: path, Err: err}
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.Path = path
		}
		return nil, err
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: err.Error(), Path: path, Err: err}
	}
	if err := cfg.resolve(filepath.Dir(absPath)); err != nil {
		return nil, &LoadError{Code: ErrCodeInvalid, Message: err.Error(), Path: path, Err: err}
	}
	return &cfg, nil
}

// Find returns the first of DefaultFiles present in dir.
func Find(dir string) (string, error) {
	for _, name := range DefaultFiles {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", &LoadError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("no config file (%s) in %s", strings.Join(DefaultFiles, ", "), dir),
	}
}

// decodeYAML decodes a YAML document. Unknown keys are errors.
func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// decodeCUE evaluates a single CUE file and decodes it.
func decodeCUE(path string, data []byte, cfg *Config) error {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return cueLoadError(err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return cueLoadError(err)
	}
	if err := v.Decode(cfg); err != nil {
		return cueLoadError(err)
	}
	return nil
}

func cueLoadError(err error) *LoadError {
	le := &LoadError{Code: ErrCodeParse, Message: err.Error(), Err: err}
	if errs := cueerrors.Errors(err); len(errs) > 0 {
		le.Message = errs[0].Error()
		le.Pos = errs[0].Position()
	}
	return le
}

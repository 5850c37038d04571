package config

import (
	"errors"
	"fmt"

	"cuelang.org/go/cue/token"
)

// Error codes for configuration loading.
const (
	ErrCodeNotFound    = "NOT_FOUND"
	ErrCodeUnsupported = "UNSUPPORTED_FORMAT"
	ErrCodeParse       = "PARSE_ERROR"
	ErrCodeInvalid     = "INVALID_CONFIG"
)

// LoadError represents an error that occurred while loading a config file.
type LoadError struct {
	Code    string
	Message string
	Path    string
	Pos     token.Pos // CUE position if available
	Err     error
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", e.Path, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *LoadError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a missing config file.
func IsNotFound(err error) bool {
	var le *LoadError
	return errors.As(err, &le) && le.Code == ErrCodeNotFound
}

// IsInvalid reports whether err is a validation failure.
func IsInvalid(err error) bool {
	var le *LoadError
	return errors.As(err, &le) && le.Code == ErrCodeInvalid
}

package site

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/roach88/kiln/internal/value"
)

// Allow lists the path prefixes file services may read and write.
// Paths must be absolute and clean.
type Allow struct {
	ReadPrefixes  []string
	WritePrefixes []string
}

// CheckRead returns an error unless path may be read.
func (a Allow) CheckRead(path string) error {
	return checkPath("read", path, a.ReadPrefixes)
}

// CheckWrite returns an error unless path may be written.
func (a Allow) CheckWrite(path string) error {
	return checkPath("write", path, a.WritePrefixes)
}

func checkPath(op, path string, prefixes []string) error {
	if !filepath.IsAbs(path) {
		return fmt.Errorf("path is not absolute: %q", path)
	}
	if filepath.Clean(path) != path {
		return fmt.Errorf("path is not normalized: %q", path)
	}
	for _, prefix := range prefixes {
		if path == prefix || strings.HasPrefix(path, strings.TrimSuffix(prefix, string(filepath.Separator))+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("cannot %s path %q because it does not start with an allowed prefix: %q", op, path, prefixes)
}

// Value encodes a as a service input field.
func (a Allow) Value() value.Value {
	return value.NewObject(
		value.P("readPrefixes", stringsValue(a.ReadPrefixes)),
		value.P("writePrefixes", stringsValue(a.WritePrefixes)),
	)
}

func stringsValue(ss []string) value.Array {
	arr := make(value.Array, len(ss))
	for i, s := range ss {
		arr[i] = value.String(s)
	}
	return arr
}

func allowFrom(v value.Value) (Allow, error) {
	obj, ok := value.AsObject(v)
	if !ok {
		return Allow{}, fmt.Errorf("allow: want object, got %T", v)
	}
	read, err := stringList(obj["readPrefixes"])
	if err != nil {
		return Allow{}, fmt.Errorf("allow.readPrefixes: %w", err)
	}
	write, err := stringList(obj["writePrefixes"])
	if err != nil {
		return Allow{}, fmt.Errorf("allow.writePrefixes: %w", err)
	}
	return Allow{ReadPrefixes: read, WritePrefixes: write}, nil
}

func stringList(v value.Value) ([]string, error) {
	if value.IsNull(v) {
		return nil, nil
	}
	arr, ok := value.AsArray(v)
	if !ok {
		return nil, fmt.Errorf("want array, got %T", v)
	}
	out := make([]string, len(arr))
	for i, e := range arr {
		s, ok := value.AsString(e)
		if !ok {
			return nil, fmt.Errorf("[%d]: want string, got %T", i, e)
		}
		out[i] = s
	}
	return out, nil
}

// fields reads the named string fields of an object input.
func fields(v value.Value, names ...string) (value.Object, []string, error) {
	obj, ok := value.AsObject(v)
	if !ok {
		return nil, nil, fmt.Errorf("input: want object, got %T", v)
	}
	out := make([]string, len(names))
	for i, name := range names {
		s, ok := value.AsString(obj[name])
		if !ok {
			return nil, nil, fmt.Errorf("input.%s: want string, got %T", name, obj[name])
		}
		out[i] = s
	}
	return obj, out, nil
}

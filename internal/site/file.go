package site

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/roach88/kiln/internal/build"
	"github.com/roach88/kiln/internal/value"
)

// ReadTextFile reads {allow, path} and returns the file contents.
var ReadTextFile = build.NewService("FileReadText", false, func(_ context.Context, in value.Value, _ *build.RunContext) (value.Value, error) {
	obj, f, err := fields(in, "path")
	if err != nil {
		return nil, err
	}
	allow, err := allowFrom(obj["allow"])
	if err != nil {
		return nil, err
	}
	if err := allow.CheckRead(f[0]); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f[0])
	if err != nil {
		return nil, err
	}
	return value.String(data), nil
})

// WriteTextFile writes {allow, path, data}, creating parent directories.
var WriteTextFile = build.NewService("FileWriteText", false, func(_ context.Context, in value.Value, rc *build.RunContext) (value.Value, error) {
	obj, f, err := fields(in, "path", "data")
	if err != nil {
		return nil, err
	}
	allow, err := allowFrom(obj["allow"])
	if err != nil {
		return nil, err
	}
	if err := allow.CheckWrite(f[0]); err != nil {
		return nil, err
	}
	if err := ensureParent(f[0]); err != nil {
		return nil, err
	}
	if err := os.WriteFile(f[0], []byte(f[1]), 0o644); err != nil {
		return nil, err
	}
	rc.Log("wrote %s (%d bytes)", f[0], len(f[1]))
	return value.Null{}, nil
})

// CopyFile copies {allow, src, dest}, creating parent directories.
var CopyFile = build.NewService("FileCopy", false, func(_ context.Context, in value.Value, rc *build.RunContext) (value.Value, error) {
	obj, f, err := fields(in, "src", "dest")
	if err != nil {
		return nil, err
	}
	allow, err := allowFrom(obj["allow"])
	if err != nil {
		return nil, err
	}
	src, dest := f[0], f[1]
	if err := allow.CheckRead(src); err != nil {
		return nil, err
	}
	if err := allow.CheckWrite(dest); err != nil {
		return nil, err
	}
	if err := ensureParent(dest); err != nil {
		return nil, err
	}
	n, err := copyFile(src, dest)
	if err != nil {
		return nil, err
	}
	rc.Log("copied %s to %s (%d bytes)", src, dest, n)
	return value.Null{}, nil
})

// DeleteFile removes {allow, path}. A missing file is not an error.
var DeleteFile = build.NewService("FileDelete", false, func(_ context.Context, in value.Value, _ *build.RunContext) (value.Value, error) {
	obj, f, err := fields(in, "path")
	if err != nil {
		return nil, err
	}
	allow, err := allowFrom(obj["allow"])
	if err != nil {
		return nil, err
	}
	if err := allow.CheckWrite(f[0]); err != nil {
		return nil, err
	}
	if err := os.Remove(f[0]); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return value.Null{}, nil
})

func ensureParent(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}

func copyFile(src, dest string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return n, err
}

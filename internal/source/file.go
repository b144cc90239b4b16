package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideBaseDir is returned when a token path escapes the configured base directory.
var ErrOutsideBaseDir = errors.New("path escapes base directory")

// File resolves tokens to file contents. With a base directory, token paths
// are relative to it and may not leave it. A single trailing newline is
// stripped.
type File struct {
	prefix  string
	baseDir string
}

// NewFile creates a File source rooted at baseDir. An empty baseDir uses
// token paths as given.
func NewFile(prefix, baseDir string) *File {
	return &File{prefix: prefix, baseDir: baseDir}
}

func (f *File) Prefix() string { return f.prefix }

func (f *File) Value(_ context.Context, raw string) (string, bool, error) {
	path, err := pathOf(raw)
	if err != nil {
		return "", false, err
	}

	full, err := resolvePath(f.baseDir, path, "")
	if err != nil {
		return "", false, err
	}

	data, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", full, err)
	}
	return trimNewline(string(data)), true, nil
}

// resolvePath joins path onto baseDir and rejects results outside baseDir.
func resolvePath(baseDir, path, ext string) (string, error) {
	if baseDir == "" {
		return filepath.Clean(path) + ext, nil
	}

	rel := filepath.Clean(strings.TrimLeft(path, "/"))
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideBaseDir, path)
	}
	return filepath.Join(baseDir, rel) + ext, nil
}

func trimNewline(s string) string {
	s = strings.TrimSuffix(s, "\n")
	return strings.TrimSuffix(s, "\r")
}

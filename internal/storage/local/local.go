// Package local stores uploaded images in a directory that the HTTP server exposes statically.
package local

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Store writes objects as files under dir and publishes them below baseURL.
type Store struct {
	dir     string
	baseURL string
}

// New creates dir when it is missing. baseURL is the absolute URL the directory is served from,
// e.g. https://img.example.com/images.
func New(dir, baseURL string) (*Store, error) {
	const op = "storage.local.New"

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%s: failed to create directory: %w", op, err)
	}

	return &Store{
		dir:     dir,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}, nil
}

// Dir returns the directory objects are written to.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) Put(ctx context.Context, key, _ string, body io.Reader, _ int64) error {
	const op = "storage.local.Store.Put"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if key == "" || key != filepath.Base(key) {
		return fmt.Errorf("%s: invalid object key %q", op, key)
	}

	f, err := os.OpenFile(filepath.Join(s.dir, key), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("%s: failed to create object: %w", op, err)
	}

	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(f.Name())
		return fmt.Errorf("%s: failed to write object: %w", op, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("%s: failed to close object: %w", op, err)
	}

	return nil
}

func (s *Store) PublicURL(key string) string {
	return s.baseURL + "/" + url.PathEscape(key)
}

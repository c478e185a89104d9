package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// FSCache keeps cached files flat under a local directory.
type FSCache struct {
	root string
}

func NewFSCache(root string) (*FSCache, error) {
	if root == "" {
		return nil, errors.New("fs cache: root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("fs cache: %w", err)
	}
	return &FSCache{root: root}, nil
}

func (c *FSCache) path(url string) string { return filepath.Join(c.root, Key(url)) }

func (c *FSCache) Exists(_ context.Context, url string) (bool, error) {
	_, err := os.Stat(c.path(url))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// Put writes to a temp file in the cache directory and renames it into place,
// so concurrent readers never see a partial file.
func (c *FSCache) Put(_ context.Context, url string, r io.Reader) error {
	tmp, err := os.CreateTemp(c.root, ".put-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), c.path(url)); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return nil
}

func (c *FSCache) Open(_ context.Context, url string) (File, error) {
	f, err := os.Open(c.path(url))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotCached, url)
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (c *FSCache) Close() error { return nil }

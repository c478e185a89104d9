// Package storage holds the cache targets the URL opener reads through, and
// the File handle type shared by openers and caches.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/url"
	"path"
	"regexp"
)

// ErrNotCached is returned by Cache.Open for a URL that was never Put.
var ErrNotCached = errors.New("storage: not cached")

// Cache stores fetched bytes keyed by source URL. Implementations are safe
// for concurrent use.
type Cache interface {
	Exists(ctx context.Context, url string) (bool, error)
	Put(ctx context.Context, url string, r io.Reader) error
	Open(ctx context.Context, url string) (File, error)
	io.Closer
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Key derives the flat object name a URL is cached under: a hash of the full
// URL followed by its sanitised base name. Query strings only feed the hash.
func Key(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	h := hex.EncodeToString(sum[:16])

	base := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		base = u.Path
	}
	base = unsafeName.ReplaceAllString(path.Base(base), "_")
	if base == "" || base == "." || base == "/" || base == "_" {
		return h
	}
	if len(base) > 96 {
		base = base[len(base)-96:]
	}
	return h + "-" + base
}

// Package opener resolves URLs to open files, optionally through a cache,
// and opens files as structured array datasets.
package opener

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"strata/internal/logging"
	"strata/internal/storage"
	"strata/internal/telemetry"
)

// URLOptions configure OpenURL. The zero value fetches directly.
type URLOptions struct {
	// Cache, when set, is populated on a miss and then read from.
	Cache storage.Cache
	// Secrets are merged into the URL query string when fetching. They never
	// reach the cache key or the returned handle's name.
	Secrets map[string]string
	// OpenKwargs are decoded into FetchOptions; unknown keys are an error.
	OpenKwargs map[string]any
}

// OpenURL resolves rawURL to an open file.
func OpenURL(ctx context.Context, rawURL string, opts URLOptions) (storage.File, error) {
	fo, err := decodeFetchOptions(opts.OpenKwargs)
	if err != nil {
		return nil, err
	}
	f, err := fetcherFor(rawURL)
	if err != nil {
		return nil, err
	}
	target, err := AddQuerySecrets(rawURL, opts.Secrets)
	if err != nil {
		return nil, err
	}

	if opts.Cache == nil {
		logging.L().Debug("opening url", "url", rawURL)
		file, err := f.Fetch(ctx, target, fo)
		return file, hideSecrets(err, opts.Secrets)
	}

	cached, err := opts.Cache.Exists(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("cache lookup %s: %w", rawURL, err)
	}
	if cached {
		telemetry.CacheRequests.WithLabelValues("hit").Inc()
	} else {
		telemetry.CacheRequests.WithLabelValues("miss").Inc()
		logging.L().Info("caching url", "url", rawURL)
		if err := fill(ctx, opts.Cache, f, rawURL, target, fo); err != nil {
			return nil, hideSecrets(err, opts.Secrets)
		}
	}
	logging.L().Debug("opening url from cache", "url", rawURL)
	return opts.Cache.Open(ctx, rawURL)
}

func fill(ctx context.Context, c storage.Cache, f Fetcher, rawURL, target string, fo FetchOptions) error {
	src, err := f.Fetch(ctx, target, fo)
	if err != nil {
		return err
	}
	defer src.Close()
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if err := c.Put(ctx, rawURL, src); err != nil {
		return fmt.Errorf("cache put %s: %w", rawURL, err)
	}
	return nil
}

func decodeFetchOptions(kwargs map[string]any) (FetchOptions, error) {
	var fo FetchOptions
	if len(kwargs) == 0 {
		return fo, nil
	}
	if err := decode(kwargs, &fo); err != nil {
		return fo, fmt.Errorf("open kwargs: %w", err)
	}
	return fo, nil
}

func decode(in map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}

// AddQuerySecrets merges secrets into the query string of rawURL. Existing
// parameters with the same name are replaced.
func AddQuerySecrets(rawURL string, secrets map[string]string) (string, error) {
	if len(secrets) == 0 {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, v := range secrets {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// redactedError replaces an error's text and keeps its chain for errors.Is.
type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

// hideSecrets masks secret values, raw or query-escaped, in err's text.
func hideSecrets(err error, secrets map[string]string) error {
	if err == nil || len(secrets) == 0 {
		return err
	}
	msg := err.Error()
	for _, v := range secrets {
		if v == "" {
			continue
		}
		msg = strings.ReplaceAll(msg, url.QueryEscape(v), "REDACTED")
		msg = strings.ReplaceAll(msg, v, "REDACTED")
	}
	if msg == err.Error() {
		return err
	}
	return &redactedError{msg: msg, err: err}
}

// redact drops the query string so secrets do not leak into names and logs.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.RawQuery == "" {
		return rawURL
	}
	u.RawQuery = ""
	return u.String()
}

package opener

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"resty.dev/v3"

	"strata/internal/storage"
)

// ErrUnknownScheme is returned for URLs no registered Fetcher serves.
var ErrUnknownScheme = errors.New("opener: no fetcher for scheme")

// FetchOptions are the open kwargs a Fetcher understands.
type FetchOptions struct {
	Headers map[string]string `mapstructure:"headers"`
	Timeout time.Duration     `mapstructure:"timeout"`
}

// Fetcher turns a URL into an open File.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, opts FetchOptions) (storage.File, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, rawURL string, opts FetchOptions) (storage.File, error)

func (f FetcherFunc) Fetch(ctx context.Context, rawURL string, opts FetchOptions) (storage.File, error) {
	return f(ctx, rawURL, opts)
}

var (
	fetchersMu sync.RWMutex
	fetchers   = map[string]Fetcher{}
)

func init() {
	h := NewHTTPFetcher(nil)
	RegisterFetcher("http", h)
	RegisterFetcher("https", h)
	RegisterFetcher("file", FetcherFunc(fetchLocal))
	RegisterFetcher("", FetcherFunc(fetchLocal))
}

// RegisterFetcher installs f for a URL scheme, replacing any previous one.
func RegisterFetcher(scheme string, f Fetcher) {
	fetchersMu.Lock()
	fetchers[strings.ToLower(scheme)] = f
	fetchersMu.Unlock()
}

// Schemes lists the URL schemes with a registered Fetcher.
func Schemes() []string {
	fetchersMu.RLock()
	defer fetchersMu.RUnlock()
	out := make([]string, 0, len(fetchers))
	for s := range fetchers {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// RegisterS3 serves s3://bucket/key URLs from the endpoint in cfg.
func RegisterS3(cfg storage.MinioConfig) error {
	client, err := storage.NewMinioClient(cfg)
	if err != nil {
		return fmt.Errorf("s3 fetcher: %w", err)
	}
	RegisterFetcher("s3", NewS3Fetcher(client))
	return nil
}

func fetcherFor(rawURL string) (Fetcher, error) {
	scheme := ""
	if u, err := url.Parse(rawURL); err == nil && len(u.Scheme) > 1 {
		// single-letter schemes are Windows drive letters
		scheme = strings.ToLower(u.Scheme)
	}
	fetchersMu.RLock()
	f, ok := fetchers[scheme]
	fetchersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownScheme, scheme)
	}
	return f, nil
}

func fetchLocal(_ context.Context, rawURL string, _ FetchOptions) (storage.File, error) {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Scheme == "file" {
		p = u.Path
	}
	return os.Open(p)
}

// HTTPFetcher downloads http(s) URLs into a temp file so the handle supports
// random access.
type HTTPFetcher struct {
	client *resty.Client
}

func NewHTTPFetcher(client *resty.Client) *HTTPFetcher {
	if client == nil {
		client = resty.New().
			SetRetryCount(0).
			SetHeader("User-Agent", "strata")
	}
	return &HTTPFetcher{client: client}
}

func (h *HTTPFetcher) Fetch(ctx context.Context, rawURL string, opts FetchOptions) (storage.File, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	resp, err := h.client.R().
		SetContext(ctx).
		SetHeaders(opts.Headers).
		SetDoNotParseResponse(true).
		Get(rawURL)
	if err != nil {
		// *url.Error carries the full URL, secrets included.
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return nil, fmt.Errorf("GET %s: %w", redact(rawURL), err)
	}
	body := resp.RawResponse.Body
	defer body.Close()
	if resp.IsError() {
		return nil, fmt.Errorf("GET %s: %s", redact(rawURL), resp.Status())
	}
	return storage.Spool(redact(rawURL), body)
}

// S3Fetcher reads s3://bucket/key URLs through a minio client.
type S3Fetcher struct {
	client *minio.Client
}

func NewS3Fetcher(client *minio.Client) *S3Fetcher { return &S3Fetcher{client: client} }

func (s *S3Fetcher) Fetch(ctx context.Context, rawURL string, _ FetchOptions) (storage.File, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	bucket, key := u.Host, strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("s3 url %q: want s3://bucket/key", rawURL)
	}
	if _, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{}); err != nil {
		return nil, err
	}
	// obj reads lazily, after ctx's deadline may have passed.
	obj, err := s.client.GetObject(context.WithoutCancel(ctx), bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	return storage.NewObjectFile(obj, "s3://"+bucket+"/"+key), nil
}

// copyTo streams f from its start into w.
func copyTo(w io.Writer, f storage.File) error {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	_, err := io.Copy(w, f)
	return err
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"strata/internal/config"
)

type MinioConfig struct {
	Endpoint  string `koanf:"endpoint"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
	Region    string `koanf:"region"`
	UseSSL    bool   `koanf:"use_ssl"`
	Bucket    string `koanf:"bucket"`
	Prefix    string `koanf:"prefix"`
}

// LoadMinioConfig reads the S3 endpoint used for s3:// URLs. YAML keys are
// those of MinioConfig; env-vars use the prefix `STRATA_S3__`.
func LoadMinioConfig(path string) (MinioConfig, error) {
	var cfg MinioConfig
	if err := config.LoadDriver(path, "STRATA_S3__", &cfg); err != nil {
		return cfg, err
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	return cfg, cfg.Validate()
}

func (c MinioConfig) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	return nil
}

// NewMinioClient builds an S3 client. It does not check the bucket, so the
// same client serves s3:// URL fetching.
func NewMinioClient(cfg MinioConfig) (*minio.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
}

// MinioCache keeps cached files as objects under bucket/prefix.
type MinioCache struct {
	client *minio.Client
	bucket string
	prefix string
}

func NewMinioCache(cfg MinioConfig) (*MinioCache, error) {
	client, err := NewMinioClient(cfg)
	if err != nil {
		return nil, err
	}
	return NewMinioCacheWithClient(client, cfg.Bucket, cfg.Prefix)
}

func NewMinioCacheWithClient(client *minio.Client, bucket, prefix string) (*MinioCache, error) {
	if client == nil {
		return nil, errors.New("minio client is required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("bucket is required")
	}
	return &MinioCache{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}, nil
}

func (c *MinioCache) object(url string) string {
	if c.prefix == "" {
		return Key(url)
	}
	return path.Join(c.prefix, Key(url))
}

func (c *MinioCache) Exists(ctx context.Context, url string) (bool, error) {
	_, err := c.client.StatObject(ctx, c.bucket, c.object(url), minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *MinioCache) Put(ctx context.Context, url string, r io.Reader) error {
	_, err := c.client.PutObject(ctx, c.bucket, c.object(url), r, -1,
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	return err
}

func (c *MinioCache) Open(ctx context.Context, url string) (File, error) {
	name := c.object(url)
	// obj reads lazily, after ctx's deadline may have passed.
	obj, err := c.client.GetObject(context.WithoutCancel(ctx), c.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	// GetObject is lazy; Stat surfaces a missing key here rather than on first read.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		if isNoSuchKey(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotCached, url)
		}
		return nil, err
	}
	return &ObjectFile{Object: obj, name: "s3://" + c.bucket + "/" + name}, nil
}

func (c *MinioCache) Close() error { return nil }

// ObjectFile names a minio object so it satisfies File.
type ObjectFile struct {
	*minio.Object
	name string
}

func NewObjectFile(obj *minio.Object, name string) *ObjectFile {
	return &ObjectFile{Object: obj, name: name}
}

func (o *ObjectFile) Name() string { return o.name }

func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchObject"
}

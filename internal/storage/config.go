package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"strata/internal/config"
)

type Config struct {
	Kind  string      `koanf:"kind"` // fs|minio|redis
	FS    FSConfig    `koanf:"fs"`
	Minio MinioConfig `koanf:"minio"`
	Redis RedisConfig `koanf:"redis"`
}

type FSConfig struct {
	Root string `koanf:"root"`
}

// LoadConfig merges YAML (if present) with env-vars
// (prefix `STRATA_CACHE__`, delimiter `__`).
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if err := config.LoadDriver(path, "STRATA_CACHE__", &cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(c *Config) {
	if c.Kind == "" {
		c.Kind = "fs"
	}
	if c.FS.Root == "" {
		c.FS.Root = filepath.Join(os.TempDir(), "strata-cache")
	}
	if c.Minio.Region == "" {
		c.Minio.Region = "us-east-1"
	}
}

// NewCache builds the cache driver named by cfg.Kind.
func NewCache(cfg Config) (Cache, error) {
	switch cfg.Kind {
	case "fs":
		return NewFSCache(cfg.FS.Root)
	case "minio", "s3":
		return NewMinioCache(cfg.Minio)
	case "redis":
		return NewRedisCache(cfg.Redis)
	default:
		return nil, fmt.Errorf("storage: unsupported cache kind %q", cfg.Kind)
	}
}

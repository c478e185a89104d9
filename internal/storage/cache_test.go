package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	a := Key("https://example.org/data/file.nc")
	assert.Equal(t, a, Key("https://example.org/data/file.nc"), "key must be stable")
	assert.True(t, strings.HasSuffix(a, "-file.nc"), "key %q keeps the base name", a)
	assert.NotEqual(t, a, Key("https://example.org/other/file.nc"))
	assert.NotEqual(t, a, Key("https://example.org/data/file.nc?v=2"))
	assert.NotContains(t, Key("https://example.org/a b?c"), " ")
	assert.Len(t, Key("https://example.org/"), 32)
}

func TestFSCache(t *testing.T) {
	ctx := context.Background()
	c, err := NewFSCache(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)

	const url = "https://example.org/data/a.nc"
	ok, err := c.Exists(ctx, url)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = c.Open(ctx, url)
	assert.True(t, errors.Is(err, ErrNotCached), "got %v", err)

	require.NoError(t, c.Put(ctx, url, strings.NewReader("payload")))
	ok, err = c.Exists(ctx, url)
	require.NoError(t, err)
	assert.True(t, ok)

	f, err := c.Open(ctx, url)
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	size, err := Size(f)
	require.NoError(t, err)
	assert.EqualValues(t, 7, size)
}

func TestFSCache_ConcurrentPut(t *testing.T) {
	ctx := context.Background()
	c, err := NewFSCache(t.TempDir())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.Put(ctx, "file:///x.nc", strings.NewReader("same bytes")))
		}()
	}
	wg.Wait()

	f, err := c.Open(ctx, "file:///x.nc")
	require.NoError(t, err)
	defer f.Close()
	data, _ := io.ReadAll(f)
	assert.Equal(t, "same bytes", string(data))

	entries, err := os.ReadDir(c.root)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestSpoolAndTempFileClose(t *testing.T) {
	tf, err := Spool("https://example.org/x", strings.NewReader("abc"))
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/x", tf.Name())

	buf := make([]byte, 2)
	_, err = tf.ReadAt(buf, 1)
	require.NoError(t, err)
	assert.Equal(t, "bc", string(buf))

	p := tf.Path()
	require.NoError(t, tf.Close())
	_, err = os.Stat(p)
	assert.True(t, os.IsNotExist(err), "temp file removed on close")
}

func TestMemFile(t *testing.T) {
	f := NewMemFile("mem", []byte("hello"))
	size, err := Size(f)
	require.NoError(t, err)
	assert.EqualValues(t, 5, size)
	assert.Equal(t, "mem", f.Name())
	assert.NoError(t, f.Close())
}

func TestMinioConfigValidate(t *testing.T) {
	valid := MinioConfig{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b", Bucket: "cache"}
	require.NoError(t, valid.Validate())

	invalid := valid
	invalid.Endpoint = "http://localhost:9000"
	assert.Error(t, invalid.Validate())

	invalid = valid
	invalid.SecretKey = " "
	assert.Error(t, invalid.Validate())

	_, err := NewMinioCacheWithClient(nil, "b", "")
	assert.Error(t, err)
}

func TestNewRedisCache_BadURL(t *testing.T) {
	_, err := NewRedisCache(RedisConfig{URL: "not-a-redis-url://"})
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cache.yml")
	require.NoError(t, os.WriteFile(p, []byte(`schema_version: v1
kind: redis
redis:
  url: redis://cache:6379/2
  ttl: 90s
`), 0o644))

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.Kind)
	assert.Equal(t, "redis://cache:6379/2", cfg.Redis.URL)
	assert.Equal(t, "1m30s", cfg.Redis.TTL.String())
	assert.NotEmpty(t, cfg.FS.Root)

	t.Setenv("STRATA_CACHE__KIND", "fs")
	t.Setenv("STRATA_CACHE__FS__ROOT", dir)
	cfg, err = LoadConfig(p)
	require.NoError(t, err)
	assert.Equal(t, "fs", cfg.Kind)
	assert.Equal(t, dir, cfg.FS.Root)

	c, err := NewCache(cfg)
	require.NoError(t, err)
	assert.IsType(t, &FSCache{}, c)

	_, err = NewCache(Config{Kind: "tape"})
	assert.Error(t, err)
}

func TestLoadConfig_BadSchema(t *testing.T) {
	p := filepath.Join(t.TempDir(), "cache.yml")
	require.NoError(t, os.WriteFile(p, []byte("schema_version: v9\n"), 0o644))
	_, err := LoadConfig(p)
	assert.Error(t, err)
}

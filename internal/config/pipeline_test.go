package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadPipelineSpec_ResolvesRelativeConfigsAndSchema(t *testing.T) {
	dir := t.TempDir()
	pipe := []byte(`schema_version: v1
source:
  kind: pattern
  config: pattern.yml
open_url:
  cache: cache.yml
  secrets: {token: abc}
open_with_array:
  file_type: netcdf3
  load: true
sinks: [stdout, netcdf]
sink_configs:
  netcdf: /abs/netcdf.yml
`)
	if err := os.WriteFile(filepath.Join(dir, "pipeline.yml"), pipe, 0o644); err != nil {
		t.Fatalf("write pipeline: %v", err)
	}

	cfg, abs, err := LoadPipelineSpec(filepath.Join(dir, "pipeline.yml"))
	if err != nil {
		t.Fatalf("LoadPipelineSpec: %v", err)
	}
	if cfg.SchemaVersion != SupportedSchema {
		t.Fatalf("want schema %s, got %s", SupportedSchema, cfg.SchemaVersion)
	}
	if abs != filepath.Join(dir, "pattern.yml") {
		t.Fatalf("want absolute source config path, got %q", abs)
	}
	if cfg.OpenURL.Cache != filepath.Join(dir, "cache.yml") {
		t.Fatalf("cache path not resolved: %q", cfg.OpenURL.Cache)
	}
	if cfg.SinkConfigs.NetCDF != "/abs/netcdf.yml" {
		t.Fatalf("absolute path rewritten: %q", cfg.SinkConfigs.NetCDF)
	}
	if cfg.OpenURL.Secrets["token"] != "abc" || !cfg.OpenWithArray.Load {
		t.Fatalf("unexpected open sections: %+v %+v", cfg.OpenURL, cfg.OpenWithArray)
	}
}

func TestLoadPipelineSpec_ExpandsEnv(t *testing.T) {
	t.Setenv("STRATA_TEST_TOKEN", "s3cr3t")
	dir := t.TempDir()
	pipe := []byte(`source: { kind: pattern }
open_url:
  secrets: {token: "${STRATA_TEST_TOKEN}"}
`)
	path := filepath.Join(dir, "pipeline.yml")
	if err := os.WriteFile(path, pipe, 0o644); err != nil {
		t.Fatalf("write pipeline: %v", err)
	}
	cfg, _, err := LoadPipelineSpec(path)
	if err != nil {
		t.Fatalf("LoadPipelineSpec: %v", err)
	}
	if got := cfg.OpenURL.Secrets["token"]; got != "s3cr3t" {
		t.Fatalf("want expanded secret, got %q", got)
	}
}

func TestLoadPipelineSpec_InvalidSchema(t *testing.T) {
	dir := t.TempDir()
	pipe := []byte(`schema_version: v999
source: { kind: kafka, driver: sarama, config: cf.yml }
sinks: [stdout]
`)
	if err := os.WriteFile(filepath.Join(dir, "pipeline.yml"), pipe, 0o644); err != nil {
		t.Fatalf("write pipeline: %v", err)
	}
	_, _, err := LoadPipelineSpec(filepath.Join(dir, "pipeline.yml"))
	if err == nil {
		t.Fatal("expected error for invalid schema_version")
	}
}

type driverCfg struct {
	Topic   string `koanf:"topic"`
	GroupID string `koanf:"group_id"`
}

func TestLoadDriver_EnvOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "drv.yml")
	if err := os.WriteFile(path, []byte("schema_version: v1\ntopic: urls\ngroup_id: a\n"), 0o644); err != nil {
		t.Fatalf("write cfg: %v", err)
	}
	t.Setenv("STRATA_TESTDRV__GROUP_ID", "from-env")

	var c driverCfg
	if err := LoadDriver(path, "STRATA_TESTDRV__", &c); err != nil {
		t.Fatalf("LoadDriver: %v", err)
	}
	if c.Topic != "urls" || c.GroupID != "from-env" {
		t.Fatalf("unexpected %+v", c)
	}
}

func TestLoadDriver_MissingFileAndBadSchema(t *testing.T) {
	var c driverCfg
	if err := LoadDriver(filepath.Join(t.TempDir(), "absent.yml"), "", &c); err != nil {
		t.Fatalf("missing file should be tolerated: %v", err)
	}

	path := filepath.Join(t.TempDir(), "bad.yml")
	if err := os.WriteFile(path, []byte("schema_version: v2\n"), 0o644); err != nil {
		t.Fatalf("write cfg: %v", err)
	}
	if err := LoadDriver(path, "STRATA_KAFKA__", &c); err == nil {
		t.Fatal("expected schema_version error")
	}
}

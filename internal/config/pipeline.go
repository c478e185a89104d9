package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"strata/internal/spec"
)

const SupportedSchema = "v1"

// LoadPipelineSpec parses a pipeline YAML, validates schema_version, and
// returns the parsed spec and an absolute path to the source config (if set).
// Cache, S3 and sink config paths in the returned spec are resolved the same way.
func LoadPipelineSpec(path string) (spec.File, string, error) {
	var cfg spec.File
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, "", err
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &cfg); err != nil {
		return cfg, "", err
	}
	if cfg.SchemaVersion == "" {
		cfg.SchemaVersion = SupportedSchema
	}
	if cfg.SchemaVersion != SupportedSchema {
		return cfg, "", fmt.Errorf("pipeline schema_version %q not supported (want %q)", cfg.SchemaVersion, SupportedSchema)
	}
	base := filepath.Dir(path)
	cfg.OpenURL.Cache = resolve(base, cfg.OpenURL.Cache)
	cfg.OpenURL.S3 = resolve(base, cfg.OpenURL.S3)
	cfg.SinkConfigs.Kafka = resolve(base, cfg.SinkConfigs.Kafka)
	cfg.SinkConfigs.NetCDF = resolve(base, cfg.SinkConfigs.NetCDF)
	return cfg, resolve(base, cfg.Source.Config), nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

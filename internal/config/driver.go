package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// LoadDriver merges a driver's YAML file (if present) with env-vars carrying
// envPrefix (delimiter `__`, e.g. STRATA_KAFKA__GROUP_ID) and unmarshals the
// result into out using `koanf` tags.
func LoadDriver(path, envPrefix string, out any) error {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	// schema version check (only when YAML is present)
	sv := k.String("schema_version")
	if sv != "" && sv != SupportedSchema {
		return fmt.Errorf("%s schema_version %q not supported (want %s)", driverName(envPrefix), sv, SupportedSchema)
	}

	if envPrefix != "" {
		_ = k.Load(env.Provider(envPrefix, "__", func(s string) string {
			return strings.ToLower(strings.TrimPrefix(s, envPrefix))
		}), nil)
	}
	return k.Unmarshal("", out)
}

func driverName(envPrefix string) string {
	n := strings.Trim(strings.TrimPrefix(envPrefix, "STRATA_"), "_")
	if n == "" {
		return "driver"
	}
	return strings.ToLower(n)
}

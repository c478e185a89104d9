package filepattern

import (
	"fmt"
	"strconv"

	"strata/internal/config"
	"strata/internal/pattern"
)

// RangeConfig generates integer keys start, start+step, ... below stop,
// each rendered with Format (default "%d").
type RangeConfig struct {
	Start  int    `koanf:"start"`
	Stop   int    `koanf:"stop"`
	Step   int    `koanf:"step"`
	Format string `koanf:"format"`
}

type DimConfig struct {
	Name      string       `koanf:"name"`
	Operation string       `koanf:"operation"` // concat|merge
	Keys      []string     `koanf:"keys"`
	Range     *RangeConfig `koanf:"range"`
}

type Config struct {
	Format   string      `koanf:"format"`
	FileType string      `koanf:"file_type"`
	Dims     []DimConfig `koanf:"dims"`
	Limit    int         `koanf:"limit"` // emit at most this many elements; 0 = all
}

// LoadConfig merges YAML (if present) with env-vars
// (prefix `STRATA_PATTERN__`, delimiter `__`).
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if err := config.LoadDriver(path, "STRATA_PATTERN__", &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Pattern converts the config into a validated FilePattern.
func (c Config) Pattern() (pattern.FilePattern, error) {
	ft, err := pattern.ParseFileType(c.FileType)
	if err != nil {
		return pattern.FilePattern{}, err
	}
	p := pattern.FilePattern{Format: c.Format, FileType: ft}
	for _, d := range c.Dims {
		op, err := pattern.ParseCombineOp(d.Operation)
		if err != nil {
			return pattern.FilePattern{}, err
		}
		keys := d.Keys
		if d.Range != nil {
			if len(keys) > 0 {
				return pattern.FilePattern{}, fmt.Errorf("filepattern: dimension %q sets both keys and range", d.Name)
			}
			if keys, err = d.Range.keys(); err != nil {
				return pattern.FilePattern{}, fmt.Errorf("filepattern: dimension %q: %w", d.Name, err)
			}
		}
		p.Dims = append(p.Dims, pattern.CombineDim{Name: d.Name, Operation: op, Keys: keys})
	}
	return p, p.Validate()
}

func (r RangeConfig) keys() ([]string, error) {
	step := r.Step
	if step == 0 {
		step = 1
	}
	if step < 0 {
		return nil, fmt.Errorf("negative step %d", step)
	}
	var out []string
	for v := r.Start; v < r.Stop; v += step {
		if r.Format == "" {
			out = append(out, strconv.Itoa(v))
		} else {
			out = append(out, fmt.Sprintf(r.Format, v))
		}
	}
	return out, nil
}

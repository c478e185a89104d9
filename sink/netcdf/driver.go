// Package netcdf is the "netcdf" sink: every dataset is written back out as
// a classic netCDF file named after its index.
package netcdf

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"strata/internal/config"
	"strata/internal/logging"
	"strata/internal/netcdf"
	"strata/sink"
)

type Config struct {
	Dir    string `koanf:"dir"`
	Prefix string `koanf:"prefix"`
}

// LoadConfig merges YAML (if present) with env-vars
// (prefix `STRATA_NETCDF_SINK__`, delimiter `__`).
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if err := config.LoadDriver(path, "STRATA_NETCDF_SINK__", &cfg); err != nil {
		return cfg, err
	}
	if cfg.Dir == "" {
		cfg.Dir = "out"
	}
	return cfg, nil
}

type driver struct {
	cfg Config
}

func (d *driver) Configure(raw any) error {
	c, ok := raw.(Config)
	if !ok {
		return fmt.Errorf("netcdf-sink: expected Config, got %T", raw)
	}
	if c.Dir == "" {
		return fmt.Errorf("netcdf-sink: dir is required")
	}
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return err
	}
	d.cfg = c
	return nil
}

// FileName maps an index to the file written for it.
func (d *driver) FileName(ds sink.Dataset) string {
	name := strings.NewReplacer("=", "-", ",", "_").Replace(ds.Key.String())
	return d.cfg.Prefix + name + ".nc"
}

func (d *driver) Push(ds sink.Dataset) error {
	if ds.Value == nil {
		return fmt.Errorf("netcdf-sink: %s: nil dataset", ds.Key)
	}
	path := filepath.Join(d.cfg.Dir, d.FileName(ds))

	tmp, err := os.CreateTemp(d.cfg.Dir, ".strata-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if err := netcdf.Write(w, ds.Value); err != nil {
		tmp.Close()
		return fmt.Errorf("netcdf-sink: %s: %w", ds.Key, err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return err
	}
	logging.L().Debug("netcdf-sink: wrote", "index", ds.Key.String(), "path", path)
	return nil
}

func (d *driver) Close() error { return nil }

func init() { sink.Register("netcdf", func() sink.Adapter { return &driver{} }) }

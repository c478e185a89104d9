package filepattern

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"strata/internal/pattern"
	"strata/source"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pattern.yml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig_RangeAndKeys(t *testing.T) {
	path := writeConfig(t, `schema_version: v1
format: "https://data.example/{variable}/day_{time}.nc"
file_type: netcdf3
dims:
  - name: variable
    operation: merge
    keys: [tas, pr]
  - name: time
    range: {start: 1, stop: 4, format: "%02d"}
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	p, err := cfg.Pattern()
	if err != nil {
		t.Fatalf("Pattern: %v", err)
	}
	if p.FileType != pattern.NetCDF3 {
		t.Fatalf("want netcdf3, got %s", p.FileType)
	}
	if p.Len() != 6 {
		t.Fatalf("want 6 files, got %d", p.Len())
	}
	if got := p.Dims[1].Keys; len(got) != 3 || got[0] != "01" || got[2] != "03" {
		t.Fatalf("unexpected range keys %v", got)
	}
	if p.Dims[0].Operation != pattern.Merge {
		t.Fatalf("want merge on variable, got %s", p.Dims[0].Operation)
	}
}

func TestConfig_KeysAndRangeConflict(t *testing.T) {
	c := Config{
		Format: "{t}.nc",
		Dims:   []DimConfig{{Name: "t", Keys: []string{"a"}, Range: &RangeConfig{Stop: 2}}},
	}
	if _, err := c.Pattern(); err == nil {
		t.Fatal("expected error when both keys and range are set")
	}
}

func TestDriver_RunEmitsInOrderWithLimit(t *testing.T) {
	a, err := source.NewAdapter("pattern", "")
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}
	err = a.Configure(Config{
		Format: "s3://bucket/{x}/{y}.nc",
		Dims: []DimConfig{
			{Name: "x", Keys: []string{"a", "b"}},
			{Name: "y", Range: &RangeConfig{Start: 0, Stop: 3}},
		},
		Limit: 4,
	})
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}

	var got []source.Element
	if err := a.Run(context.Background(), func(e source.Element) error {
		got = append(got, e)
		return nil
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{"s3://bucket/a/0.nc", "s3://bucket/a/1.nc", "s3://bucket/a/2.nc", "s3://bucket/b/0.nc"}
	if len(got) != len(want) {
		t.Fatalf("want %d elements, got %d", len(want), len(got))
	}
	for i, w := range want {
		if got[i].Value != w {
			t.Fatalf("element %d: want %s, got %s", i, w, got[i].Value)
		}
	}
	if got[3].Key.String() != "x=1,y=0" {
		t.Fatalf("unexpected index %s", got[3].Key)
	}
}

func TestDriver_RunStopsOnEmitError(t *testing.T) {
	d := &Driver{}
	if err := d.Configure(Config{Format: "{t}", Dims: []DimConfig{{Name: "t", Keys: []string{"1", "2"}}}}); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	boom := errors.New("boom")
	calls := 0
	err := d.Run(context.Background(), func(source.Element) error { calls++; return boom })
	if !errors.Is(err, boom) || calls != 1 {
		t.Fatalf("want boom after one call, got %v after %d", err, calls)
	}
}

func TestDriver_ConfigureRejectsWrongType(t *testing.T) {
	if err := (&Driver{}).Configure(42); err == nil {
		t.Fatal("expected error")
	}
}

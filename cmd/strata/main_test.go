package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"strata/internal/netcdf"
)

func writeSample(t *testing.T, dir string) string {
	t.Helper()
	ds := netcdf.NewDataset("tas.nc")
	if err := ds.AddDim("x", 3); err != nil {
		t.Fatalf("AddDim: %v", err)
	}
	if _, err := ds.AddVar("tas", []string{"x"}, []int32{1, 2, 3}); err != nil {
		t.Fatalf("AddVar: %v", err)
	}
	path := filepath.Join(dir, "tas.nc")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if err := netcdf.Write(f, ds); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestInspect_LocalTable(t *testing.T) {
	path := writeSample(t, t.TempDir())

	out, err := execute(t, "inspect", path)
	if err != nil {
		t.Fatalf("inspect: %v\n%s", err, out)
	}
	for _, want := range []string{"CDF-1", "x=3", "tas", "(x)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestInspect_LocalJSON(t *testing.T) {
	path := writeSample(t, t.TempDir())

	out, err := execute(t, "inspect", "--json", "--load", path)
	if err != nil {
		t.Fatalf("inspect: %v\n%s", err, out)
	}
	var s netcdf.Summary
	if err := json.Unmarshal([]byte(out), &s); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if s.Dims["x"] != 3 || len(s.Vars) != 1 || s.Vars[0].Name != "tas" || !s.Loaded {
		t.Fatalf("unexpected summary %+v", s)
	}
}

func TestInspect_BadFileType(t *testing.T) {
	if _, err := execute(t, "inspect", "--file-type", "tiff", "x.nc"); err == nil {
		t.Fatal("expected an error for an unknown file type")
	}
}

func TestRoot_BadLogLevel(t *testing.T) {
	_, err := execute(t, "--log-level", "loud", "inspect", "x.nc")
	if err == nil || !strings.Contains(err.Error(), "log level") {
		t.Fatalf("expected an unknown log level error, got %v", err)
	}
}

func TestRun_RequiresPipeline(t *testing.T) {
	if _, err := execute(t, "run"); err == nil {
		t.Fatal("expected an argument error")
	}
	if _, err := execute(t, "run", filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Fatal("expected an error for a missing pipeline file")
	}
}

package provider

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"
)

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	var names []string
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestRepair(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "S2B_MSIL2A_20210507T105619.SAFE")
	if err := os.WriteFile(path, []byte("zip bytes"), 0644); err != nil {
		t.Fatal(err)
	}

	normalizer := NewNormalizer()
	repaired, err := normalizer.Repair(ctx, path, "SAFE")
	if err != nil {
		t.Fatalf("Repair: %v", err)
	}
	if repaired != path+".zip" {
		t.Errorf("expecting %s.zip, got %s", path, repaired)
	}
	if _, err := os.Stat(repaired); err != nil {
		t.Errorf("renamed file missing: %v", err)
	}

	// repairing again finds the renamed file and does not error
	again, err := normalizer.Repair(ctx, path, "SAFE")
	if err != nil {
		t.Fatalf("Repair (second run): %v", err)
	}
	if again != repaired {
		t.Errorf("expecting %s, got %s", repaired, again)
	}

	// unknown formats are left alone
	other := filepath.Join(dir, "raster.tif")
	if err := os.WriteFile(other, []byte("tif"), 0644); err != nil {
		t.Fatal(err)
	}
	untouched, err := normalizer.Repair(ctx, other, "GeoTiff")
	if err != nil || untouched != other {
		t.Errorf("expecting %s untouched, got %s (%v)", other, untouched, err)
	}
}

func TestExtractAllIdempotent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeZip(t, filepath.Join(dir, "u2018_clc2018.zip"), map[string]string{
		"u2018_clc2018/raster100m.tif": "raster bytes",
		"u2018_clc2018/legend.txt":     "legend",
	})

	normalizer := NewNormalizer()
	if err := normalizer.ExtractAll(ctx, dir); err != nil {
		t.Fatalf("ExtractAll: %v", err)
	}
	first := listDir(t, dir)

	if err := normalizer.ExtractAll(ctx, dir); err != nil {
		t.Fatalf("ExtractAll (second run): %v", err)
	}
	second := listDir(t, dir)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("extraction is not idempotent: %v != %v", first, second)
	}
	if _, err := os.Stat(filepath.Join(dir, "u2018_clc2018", "raster100m.tif")); err != nil {
		t.Errorf("extracted file missing: %v", err)
	}
}

func TestIsArchive(t *testing.T) {
	if !isArchive("product.zip") || !isArchive("product.tar.gz") {
		t.Errorf("zip and tar.gz are archives")
	}
	if isArchive("raster100m.tif") || isArchive("legend.txt") {
		t.Errorf("tif and txt are not archives")
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Output.FileName != "newfile.nrrd" {
		t.Errorf("Expected default output name, got %q", cfg.Output.FileName)
	}
	if cfg.Mask.ThresholdDivisor != 100 {
		t.Errorf("Expected threshold divisor 100, got %v", cfg.Mask.ThresholdDivisor)
	}
}

func TestSaveAndLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Display.Scale = 4
	cfg.Remember("/data/a.nrrd", "", "/data/roi.nrrd")
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if loaded.Display.Scale != 4 {
		t.Errorf("Expected scale 4, got %d", loaded.Display.Scale)
	}
	if loaded.Recent.NRRD != "/data/a.nrrd" || loaded.Recent.ROI != "/data/roi.nrrd" || loaded.Recent.NIfTI != "" {
		t.Errorf("Unexpected recent paths %+v", loaded.Recent)
	}
}

func TestLoadConfigPartial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("output:\n  fileName: result.nrrd\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Output.FileName != "result.nrrd" {
		t.Errorf("Expected result.nrrd, got %q", cfg.Output.FileName)
	}
	if cfg.Display.Scale != 2 {
		t.Errorf("Expected unspecified scale to keep default 2, got %d", cfg.Display.Scale)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("display: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected error for malformed YAML, got nil")
	}
}

func TestCreateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := CreateDefaultConfigFile(path); err != nil {
		t.Fatalf("CreateDefaultConfigFile failed: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Display.PlotWidth != 8 {
		t.Errorf("Expected plot width 8, got %v", cfg.Display.PlotWidth)
	}
}

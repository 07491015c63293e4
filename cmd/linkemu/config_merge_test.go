package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "linkemu.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestMergeConfigFile_FillsUnsetFields(t *testing.T) {
	path := writeConfigFile(t, `{"dest_ip":"10.0.0.5","dest_port":6000,"snr_db":15}`)
	cfg := &appConfig{listenIP: "0.0.0.0", snrDb: 20}
	if err := mergeConfigFile(cfg, path, map[string]struct{}{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.destIP != "10.0.0.5" || cfg.destPort != 6000 {
		t.Fatalf("expected file values applied, got %+v", cfg)
	}
	if cfg.snrDb != 15 {
		t.Fatalf("expected snr_db from file, got %v", cfg.snrDb)
	}
}

func TestMergeConfigFile_CLIFlagWins(t *testing.T) {
	path := writeConfigFile(t, `{"snr_db":15}`)
	cfg := &appConfig{snrDb: 42}
	setFlags := map[string]struct{}{"snr-db": {}}
	if err := mergeConfigFile(cfg, path, setFlags); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.snrDb != 42 {
		t.Fatalf("expected CLI value to win, got %v", cfg.snrDb)
	}
}

func TestMergeConfigFile_SeedMarksSeedSet(t *testing.T) {
	path := writeConfigFile(t, `{"seed":777}`)
	cfg := &appConfig{}
	if err := mergeConfigFile(cfg, path, map[string]struct{}{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.seedSet || cfg.seed != 777 {
		t.Fatalf("expected seed 777 and seedSet true, got %+v", cfg)
	}
}

func TestMergeConfigFile_MissingFile(t *testing.T) {
	cfg := &appConfig{}
	err := mergeConfigFile(cfg, filepath.Join(t.TempDir(), "missing.json"), map[string]struct{}{})
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestMergeConfigFile_InvalidJSON(t *testing.T) {
	path := writeConfigFile(t, `{not json`)
	cfg := &appConfig{}
	if err := mergeConfigFile(cfg, path, map[string]struct{}{}); err == nil {
		t.Fatalf("expected error for invalid json")
	}
}

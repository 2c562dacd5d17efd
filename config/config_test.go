package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/flowmesh/workflow/config"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.Store.Backend != "memory" {
		t.Fatalf("Store.Backend = %q", cfg.Store.Backend)
	}
	if cfg.DefaultToolTimeout != 10*time.Second {
		t.Fatalf("DefaultToolTimeout = %v", cfg.DefaultToolTimeout)
	}
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("listenAddr: \":9999\"\nstore:\n  backend: sqlite\n  dsn: \"/tmp/wf.db\"\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":9999" {
		t.Fatalf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.Store.Backend != "sqlite" || cfg.Store.DSN != "/tmp/wf.db" {
		t.Fatalf("unexpected store config: %+v", cfg.Store)
	}
}

func TestLoadRejectsUnknownStoreBackend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("store:\n  backend: mongo\n"), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	if _, err := config.Load(path); err == nil {
		t.Fatalf("expected an error for an unknown store backend")
	}
}

func TestLoadRequiresDSNForSQLite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("store:\n  backend: sqlite\n"), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	if _, err := config.Load(path); err == nil {
		t.Fatalf("expected an error when sqlite backend is missing a dsn")
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	if _, err := config.Load("/nonexistent/path/config.yaml"); err == nil {
		t.Fatalf("expected an error for a missing explicit config path")
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STIGKEEPER_DB", "")
	t.Setenv("WORKER_CONCURRENCY", "")
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DatabasePath != "stigkeeper.db" || cfg.WorkerConcurrency != 2 || cfg.NISTBaseURL != DefaultNISTBaseURL {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stigkeeper.yaml")
	data := []byte("database: /var/lib/stig.db\nworker_concurrency: 6\nhttp_timeout: 30s\ntested_by: isso\n" +
		"stig_library_url: https://mirror.example/U_SRG-STIG_Library.zip\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("WORKER_CONCURRENCY", "3")
	t.Setenv("STIGKEEPER_DB", "")
	t.Setenv("TESTED_BY", "")
	t.Setenv("STIG_LIBRARY_URL", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DatabasePath != "/var/lib/stig.db" {
		t.Errorf("DatabasePath = %q", cfg.DatabasePath)
	}
	if cfg.WorkerConcurrency != 3 {
		t.Errorf("env should override file: WorkerConcurrency = %d", cfg.WorkerConcurrency)
	}
	if cfg.HTTPTimeout != 30*time.Second {
		t.Errorf("HTTPTimeout = %s", cfg.HTTPTimeout)
	}
	if cfg.TestedBy != "isso" {
		t.Errorf("TestedBy = %q", cfg.TestedBy)
	}
	if cfg.STIGLibraryURL != "https://mirror.example/U_SRG-STIG_Library.zip" {
		t.Errorf("STIGLibraryURL = %q", cfg.STIGLibraryURL)
	}
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Errorf("Load: %v", err)
	}
}

func TestLoadRejectsBadEnv(t *testing.T) {
	t.Setenv("HTTP_TIMEOUT", "soon")
	if _, err := Load(""); err == nil {
		t.Error("expected error for unparsable HTTP_TIMEOUT")
	}
}

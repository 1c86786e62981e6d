package main

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yourorg/stigkeeper/internal/db"
)

func execute(t *testing.T, dbPath string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--db", dbPath, "--config", filepath.Join(t.TempDir(), "none.yaml")}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestAssetLifecycle(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cli.db")

	out, err := execute(t, dbPath, "asset", "add", "web01", "--ip", "10.0.0.5")
	if err != nil || !strings.Contains(out, "added asset 1 web01") {
		t.Fatalf("add: %q, %v", out, err)
	}
	if _, err := execute(t, dbPath, "asset", "add", "web01"); !errors.Is(err, db.ErrDuplicate) {
		t.Errorf("duplicate add error = %v", err)
	}

	out, err = execute(t, dbPath, "asset", "list")
	if err != nil || !strings.Contains(out, "web01") || !strings.Contains(out, "10.0.0.5") {
		t.Errorf("list: %q, %v", out, err)
	}

	out, err = execute(t, dbPath, "asset", "show", "web01")
	if err != nil || !strings.Contains(out, "10.0.0.5") || !strings.Contains(out, "(none)") {
		t.Errorf("show: %q, %v", out, err)
	}

	if _, err := execute(t, dbPath, "asset", "attach", "web01", "7"); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("attach to missing stig error = %v", err)
	}

	out, err = execute(t, dbPath, "asset", "delete", "1")
	if err != nil || !strings.Contains(out, "deleted asset web01") {
		t.Errorf("delete: %q, %v", out, err)
	}
	if _, err := execute(t, dbPath, "asset", "show", "web01"); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("show after delete error = %v", err)
	}
}

func TestNumericHostNameLookup(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cli.db")
	if _, err := execute(t, dbPath, "asset", "add", "web01"); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, dbPath, "asset", "add", "1001", "--ip", "10.0.0.9"); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, dbPath, "asset", "show", "1001")
	if err != nil || !strings.Contains(out, "10.0.0.9") {
		t.Errorf("show by numeric name: %q, %v", out, err)
	}
	out, err = execute(t, dbPath, "asset", "show", "1")
	if err != nil || !strings.Contains(out, "web01") {
		t.Errorf("show by id: %q, %v", out, err)
	}
	if _, err := execute(t, dbPath, "asset", "show", "42"); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("show of unknown asset error = %v", err)
	}
}

func TestReferenceDeleteAndJobs(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cli.db")
	out, err := execute(t, dbPath, "cci", "delete")
	if err != nil || !strings.Contains(out, "reference data deleted") {
		t.Fatalf("cci delete: %q, %v", out, err)
	}
	out, err = execute(t, dbPath, "cci", "list")
	if err != nil || !strings.Contains(out, "(none)") {
		t.Errorf("cci list: %q, %v", out, err)
	}

	out, err = execute(t, dbPath, "ckl", "import", filepath.Join(t.TempDir(), "missing.ckl"))
	if err == nil {
		t.Errorf("import of a missing file succeeded: %q", out)
	}
	out, err = execute(t, dbPath, "jobs")
	if err != nil || !strings.Contains(out, "ckl-import") || !strings.Contains(out, "failed") {
		t.Errorf("jobs: %q, %v", out, err)
	}
}

func TestSTIGImportNeedsSource(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cli.db")
	if _, err := execute(t, dbPath, "stig", "import"); err == nil || !strings.Contains(err.Error(), "--bucket") {
		t.Errorf("error = %v", err)
	}
	if _, err := execute(t, dbPath, "stig", "import", "--bucket"); err == nil || !strings.Contains(err.Error(), "STIGS_BUCKET") {
		t.Errorf("error = %v", err)
	}
	t.Setenv("STIG_LIBRARY_URL", "")
	if _, err := execute(t, dbPath, "stig", "import", "--download"); err == nil || !strings.Contains(err.Error(), "STIG_LIBRARY_URL") {
		t.Errorf("error = %v", err)
	}
}

package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"go.uber.org/multierr"
)

func TestSlug(t *testing.T) {
	cases := map[string]string{
		"Add Refund Reason!":     "add_refund_reason",
		"  orders -- index  ":    "orders_index",
		"already_snake_case":     "already_snake_case",
		"!!!":                    "",
		"Inventory/Movements v2": "inventory_movements_v2",
	}
	for in, want := range cases {
		if got := slug(in); got != want {
			t.Errorf("slug(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCreateSQLMigrationWritesValidTemplate(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateSQLMigration(dir, "Add Refund Reason!")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasSuffix(filepath.Base(path), "_add_refund_reason.sql") {
		t.Fatalf("unexpected filename %s", filepath.Base(path))
	}
	body, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(body), markerUp) || !strings.Contains(string(body), markerDown) {
		t.Fatalf("template missing goose markers: %s", body)
	}
	if err := ValidateDir(dir); err != nil {
		t.Fatalf("validate created migration: %v", err)
	}
}

func TestCreateRefusesToOverwrite(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	if _, err := createAt(dir, "orders", now); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := createAt(dir, "orders", now); err == nil {
		t.Fatal("expected second create with the same version to fail")
	}
}

func TestCreateRejectsEmptyName(t *testing.T) {
	if _, err := CreateSQLMigration(t.TempDir(), "???"); err == nil {
		t.Fatal("expected error for name without usable characters")
	}
}

func TestValidateFSReportsEveryProblem(t *testing.T) {
	fsys := fstest.MapFS{
		"m/bad.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		"m/20260301090000_one.sql": {Data: []byte(
			"-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose Down\n",
		)},
		"m/20260301090000_two.sql": {Data: []byte("-- +goose Up\nSELECT 1;\n")},
		"m/README.md":              {Data: []byte("ignored")},
	}

	err := ValidateFS(fsys, "m")
	if err == nil {
		t.Fatal("expected validation errors")
	}
	// bad name, unterminated block, duplicate version, missing Down
	if got := len(multierr.Errors(err)); got != 4 {
		t.Fatalf("expected 4 problems, got %d: %v", got, err)
	}
}

func TestValidateFSRejectsStrayStatementEnd(t *testing.T) {
	fsys := fstest.MapFS{
		"m/20260301090000_one.sql": {Data: []byte(
			"-- +goose Up\nSELECT 1;\n-- +goose StatementEnd\n-- +goose Down\n",
		)},
	}
	if err := ValidateFS(fsys, "m"); err == nil {
		t.Fatal("expected stray StatementEnd to be rejected")
	}
}

func TestValidateDirRequiresDir(t *testing.T) {
	if err := ValidateDir(""); err == nil {
		t.Fatal("expected error for empty dir")
	}
}

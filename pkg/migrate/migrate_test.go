package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDialect(t *testing.T) {
	t.Parallel()

	if got := Dialect("postgres"); got != "postgres" {
		t.Fatalf("Dialect(postgres) = %q", got)
	}
	if got := Dialect("sqlite"); got != "sqlite3" {
		t.Fatalf("Dialect(sqlite) = %q", got)
	}
}

func TestValidateDirAcceptsShippedMigrations(t *testing.T) {
	t.Parallel()

	if err := ValidateDir("migrations"); err != nil {
		t.Fatalf("ValidateDir: %v", err)
	}
}

func TestValidateDirRejectsBadFilename(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	bad := filepath.Join(dir, "01_bad.sql")
	if err := os.WriteFile(bad, []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	err := ValidateDir(dir)
	if err == nil || !strings.Contains(err.Error(), "invalid migration filename") {
		t.Fatalf("expected filename error, got %v", err)
	}
}

func TestValidateDirRejectsMissingHeaders(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	name := filepath.Join(dir, "20260115093000_create_things.sql")
	if err := os.WriteFile(name, []byte("CREATE TABLE things (id INT);"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	err := ValidateDir(dir)
	if err == nil || !strings.Contains(err.Error(), "+goose Up") {
		t.Fatalf("expected header error, got %v", err)
	}
}

func TestCreateSQLMigration(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path, err := CreateSQLMigration(dir, "Add Frames Table!")
	if err != nil {
		t.Fatalf("CreateSQLMigration: %v", err)
	}
	base := filepath.Base(path)
	if !strings.HasSuffix(base, "_add_frames_table.sql") {
		t.Fatalf("unexpected filename %q", base)
	}
	if err := ValidateDir(dir); err != nil {
		t.Fatalf("ValidateDir on created migration: %v", err)
	}
}

package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"schema-migrator/internal/domain"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// setupSQLiteEnv は一時ファイルのSQLiteを接続先に設定する。
func setupSQLiteEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_NAME", filepath.Join(dir, "cli.db"))
	t.Setenv("OTEL_ENABLED", "false")
	t.Setenv("MIGRATIONS_DIR", "")
	t.Setenv("LOG_LEVEL", "ERROR")
	return dir
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "success", err: nil, want: 0},
		{name: "config error", err: &domain.ConfigError{Field: "DB_HOST", Reason: "is required"}, want: 2},
		{name: "wrapped config error", err: fmt.Errorf("loading: %w", &domain.ConfigError{Field: "DB_USER"}), want: 2},
		{name: "migration failure", err: &domain.DescriptorError{ID: "001", Err: errors.New("boom")}, want: 1},
		{name: "locked", err: domain.ErrRunnerLocked, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMigrateUp_ConfigError(t *testing.T) {
	t.Setenv("DB_DRIVER", "mysql")
	t.Setenv("DB_HOST", "")

	_, err := runCLI(t, "migrate", "up")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if got := exitCode(err); got != 2 {
		t.Errorf("expected exit code 2, got %d (%v)", got, err)
	}
}

func TestMigrateCreate(t *testing.T) {
	dir := t.TempDir()

	out, err := runCLI(t, "migrate", "create", "--dir", dir, "Add Notes")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if !strings.Contains(out, "Created") {
		t.Errorf("unexpected output: %s", out)
	}

	files, err := filepath.Glob(filepath.Join(dir, "*_add_notes.sql"))
	if err != nil {
		t.Fatalf("glob failed: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 migration file, got %d", len(files))
	}
}

func TestMigrateCreate_NoDir(t *testing.T) {
	t.Setenv("MIGRATIONS_DIR", "")

	_, err := runCLI(t, "migrate", "create", "notes")
	if got := exitCode(err); got != 2 {
		t.Errorf("expected exit code 2, got %d (%v)", got, err)
	}
}

func TestMigrate_UpStatusDown(t *testing.T) {
	dir := setupSQLiteEnv(t)

	sqlDir := filepath.Join(dir, "sql")
	if err := os.MkdirAll(sqlDir, 0o755); err != nil {
		t.Fatalf("failed to create sql dir: %v", err)
	}
	content := "-- +migrate Up\nCREATE TABLE note (id INTEGER PRIMARY KEY, body TEXT);\n-- +migrate Down\nDROP TABLE note;\n"
	if err := os.WriteFile(filepath.Join(sqlDir, "20300101000000_add_note.sql"), []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write migration: %v", err)
	}
	t.Setenv("MIGRATIONS_DIR", sqlDir)

	out, err := runCLI(t, "migrate", "up", "--dry-run")
	if err != nil {
		t.Fatalf("dry-run failed: %v", err)
	}
	if !strings.Contains(out, "Would apply 2 migration(s)") {
		t.Errorf("unexpected dry-run output: %s", out)
	}

	out, err = runCLI(t, "migrate", "up")
	if err != nil {
		t.Fatalf("up failed: %v", err)
	}
	if !strings.Contains(out, "Applied 2 migration(s) successfully.") {
		t.Errorf("unexpected up output: %s", out)
	}

	out, err = runCLI(t, "migrate", "up")
	if err != nil {
		t.Fatalf("second up failed: %v", err)
	}
	if !strings.Contains(out, "No pending migrations.") {
		t.Errorf("unexpected second up output: %s", out)
	}

	out, err = runCLI(t, "migrate", "status")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	for _, want := range []string{"20210502230816_initial", "20300101000000_add_note", "applied"} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q: %s", want, out)
		}
	}

	out, err = runCLI(t, "migrate", "down", "--to", "20210502230816_initial")
	if err != nil {
		t.Fatalf("down failed: %v", err)
	}
	if !strings.Contains(out, "Reverted 1 migration(s) successfully.") {
		t.Errorf("unexpected down output: %s", out)
	}

	out, err = runCLI(t, "migrate", "status")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !strings.Contains(out, "pending") {
		t.Errorf("expected add_note to be pending: %s", out)
	}
}

func TestMigratePending(t *testing.T) {
	setupSQLiteEnv(t)

	out, err := runCLI(t, "migrate", "pending")
	if err != nil {
		t.Fatalf("pending failed: %v", err)
	}
	if !strings.Contains(out, "Pending 1 migration(s):") || !strings.Contains(out, "20210502230816_initial") {
		t.Errorf("unexpected pending output: %s", out)
	}

	if _, err := runCLI(t, "migrate", "up"); err != nil {
		t.Fatalf("up failed: %v", err)
	}
	out, err = runCLI(t, "migrate", "pending")
	if err != nil {
		t.Fatalf("pending failed: %v", err)
	}
	if !strings.Contains(out, "No pending migrations.") {
		t.Errorf("unexpected pending output after up: %s", out)
	}
}

func TestMigrateUp_UnknownTarget(t *testing.T) {
	setupSQLiteEnv(t)

	_, err := runCLI(t, "migrate", "up", "--to", "19990101000000_nope")
	if !errors.Is(err, domain.ErrUnknownTarget) {
		t.Fatalf("expected ErrUnknownTarget, got %v", err)
	}
	if got := exitCode(err); got != 1 {
		t.Errorf("expected exit code 1, got %d", got)
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := runCLI(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(out, version) {
		t.Errorf("unexpected output: %s", out)
	}
}

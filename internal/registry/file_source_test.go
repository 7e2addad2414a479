package registry

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"schema-migrator/internal/domain"
)

func TestFileSource_Descriptors(t *testing.T) {
	fsys := fstest.MapFS{
		"20210601000000_add_notes.sql": {Data: []byte(
			"-- +migrate Up\nCREATE TABLE notes (id INT);\nCREATE INDEX idx_notes ON notes (id);\n\n-- +migrate Down\nDROP TABLE notes;\n",
		)},
		"20210602000000_seed_users.sql": {Data: []byte(
			"-- +migrate Up\nINSERT INTO user (name) VALUES ('admin');\n-- +migrate Down irreversible\n",
		)},
		"README.md": {Data: []byte("ignored")},
		"sub/x.sql": {Data: []byte("ignored")},
	}

	descriptors, err := NewFSSource(fsys, "db/migrations").Descriptors()
	if err != nil {
		t.Fatalf("Descriptors failed: %v", err)
	}
	if len(descriptors) != 2 {
		t.Fatalf("expected 2 descriptors, got %d", len(descriptors))
	}

	notes := descriptors[0]
	if notes.ID != "20210601000000_add_notes" || notes.Name != "add_notes" {
		t.Errorf("unexpected id/name: %s %s", notes.ID, notes.Name)
	}
	if notes.Source != "db/migrations/20210601000000_add_notes.sql" {
		t.Errorf("unexpected source: %s", notes.Source)
	}
	if len(notes.Up) != 1 || len(notes.Down) != 1 {
		t.Fatalf("expected single up/down operation, got %d/%d", len(notes.Up), len(notes.Down))
	}
	up := notes.Up[0].(domain.ExecSQL)
	if !strings.HasPrefix(up.SQL, "CREATE TABLE notes") || !strings.HasSuffix(up.SQL, "ON notes (id);") {
		t.Errorf("unexpected up sql: %q", up.SQL)
	}
	if err := notes.Validate(); err != nil {
		t.Errorf("expected valid descriptor: %v", err)
	}

	seed := descriptors[1]
	if !seed.Irreversible || len(seed.Down) != 0 {
		t.Errorf("expected irreversible descriptor, got %+v", seed)
	}
	if err := seed.Validate(); err != nil {
		t.Errorf("expected valid descriptor: %v", err)
	}
}

func TestFileSource_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		content  string
	}{
		{name: "bad filename", filename: "initial.sql", content: "-- +migrate Up\nSELECT 1;\n-- +migrate Down\nSELECT 1;\n"},
		{name: "down before up", filename: "001_a.sql", content: "-- +migrate Down\nSELECT 1;\n-- +migrate Up\nSELECT 1;\n"},
		{name: "irreversible with body", filename: "001_a.sql", content: "-- +migrate Up\nSELECT 1;\n-- +migrate Down irreversible\nSELECT 1;\n"},
		{name: "unknown down flag", filename: "001_a.sql", content: "-- +migrate Up\nSELECT 1;\n-- +migrate Down maybe\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := fstest.MapFS{tt.filename: {Data: []byte(tt.content)}}
			_, err := NewFSSource(fsys, ".").Descriptors()
			if !errors.Is(err, domain.ErrInvalidMigrationFile) {
				t.Errorf("expected ErrInvalidMigrationFile, got %v", err)
			}
		})
	}
}

func TestFileSource_MissingSection(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "missing up", content: "-- +migrate Down\nDROP TABLE a;\n"},
		{name: "missing down", content: "-- +migrate Up\nCREATE TABLE a (id INT);\n"},
		{name: "empty down", content: "-- +migrate Up\nCREATE TABLE a (id INT);\n-- +migrate Down\n"},
		{name: "no markers", content: "CREATE TABLE a (id INT);\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := fstest.MapFS{"001_a.sql": {Data: []byte(tt.content)}}
			_, err := New(NewFSSource(fsys, ".")).List()

			var malformed *domain.MalformedDescriptorError
			if !errors.As(err, &malformed) {
				t.Fatalf("expected MalformedDescriptorError, got %v", err)
			}
			if malformed.ID != "001_a" {
				t.Errorf("expected id 001_a, got %q", malformed.ID)
			}
			if errors.Is(err, domain.ErrInvalidMigrationFile) {
				t.Errorf("expected no ErrInvalidMigrationFile, got %v", err)
			}
		})
	}
}

func TestFileSource_MissingDirectory(t *testing.T) {
	_, err := NewFileSource(filepath.Join(t.TempDir(), "nope")).Descriptors()
	if err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestCreateMigrationFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "migrations")
	now := time.Date(2021, 5, 2, 23, 8, 16, 0, time.UTC)

	path, err := CreateMigrationFile(dir, "  Add Users-Table! ", now)
	if err != nil {
		t.Fatalf("CreateMigrationFile failed: %v", err)
	}
	if filepath.Base(path) != "20210502230816_add_users_table.sql" {
		t.Errorf("unexpected filename: %s", filepath.Base(path))
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read created file: %v", err)
	}
	for _, marker := range []string{upMarker, downMarker} {
		if !strings.Contains(string(content), marker) {
			t.Errorf("expected %q in template", marker)
		}
	}

	// 同じIDのファイルは上書きしない
	if _, err := CreateMigrationFile(dir, "add users table", now); err == nil {
		t.Error("expected error for existing file")
	}
}

func TestCreateMigrationFile_InvalidName(t *testing.T) {
	if _, err := CreateMigrationFile(t.TempDir(), "!!!", time.Now()); err == nil {
		t.Error("expected error for unusable name")
	}
}

func TestCreateMigrationFile_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateMigrationFile(dir, "notes", time.Now())
	if err != nil {
		t.Fatalf("CreateMigrationFile failed: %v", err)
	}
	body := "-- +migrate Up\nCREATE TABLE notes (id INT);\n-- +migrate Down\nDROP TABLE notes;\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	list, err := New(NewFileSource(dir)).List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 1 || list[0].Name != "notes" {
		t.Errorf("unexpected descriptors: %+v", list)
	}
}

package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// IDTimeFormat はディスクリプタIDの先頭に付けるタイムスタンプの書式。
const IDTimeFormat = "20060102150405"

var unsafeNameChars = regexp.MustCompile(`[^a-z0-9_]+`)

const fileTemplate = `-- %s
-- +migrate Up


-- +migrate Down

`

// CreateMigrationFile は dir に {timestamp}_{name}.sql の雛形を作成し、そのパスを返す。
func CreateMigrationFile(dir, name string, now time.Time) (string, error) {
	safeName := strings.Trim(unsafeNameChars.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "_"), "_")
	if safeName == "" {
		return "", fmt.Errorf("migration name %q has no usable characters", name)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create migrations directory: %w", err)
	}

	id := now.UTC().Format(IDTimeFormat) + "_" + safeName
	filename := filepath.Join(dir, id+".sql")
	content := fmt.Sprintf(fileTemplate, id)

	f, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create migration file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(content); err != nil {
		return "", fmt.Errorf("failed to write migration file: %w", err)
	}
	return filename, nil
}

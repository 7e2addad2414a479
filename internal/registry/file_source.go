package registry

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"schema-migrator/internal/domain"
)

const (
	upMarker           = "-- +migrate Up"
	downMarker         = "-- +migrate Down"
	irreversibleMarker = "irreversible"
)

// FileSource はディレクトリ内の {id}_{name}.sql ファイルからディスクリプタを読み込む。
type FileSource struct {
	fsys fs.FS
	root string
}

// NewFileSource はローカルディレクトリを読む FileSource を生成する。
func NewFileSource(dir string) *FileSource {
	return &FileSource{fsys: os.DirFS(dir), root: dir}
}

// NewFSSource は任意の fs.FS（embed.FS など）を読む FileSource を生成する。
func NewFSSource(fsys fs.FS, root string) *FileSource {
	return &FileSource{fsys: fsys, root: root}
}

// Descriptors はディレクトリをスキャンしてディスクリプタを返す。順序は Registry が決める。
func (s *FileSource) Descriptors() ([]domain.Descriptor, error) {
	entries, err := fs.ReadDir(s.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var descriptors []domain.Descriptor
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		id, name, err := parseMigrationFileName(entry.Name())
		if err != nil {
			return nil, err
		}

		content, err := fs.ReadFile(s.fsys, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", entry.Name(), err)
		}

		d, err := parseMigrationFile(string(content))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrInvalidMigrationFile, entry.Name(), err)
		}
		d.ID = id
		d.Name = name
		d.Source = path.Join(s.root, entry.Name())
		descriptors = append(descriptors, d)
	}

	return descriptors, nil
}

// parseMigrationFileName はファイル名からIDと名前を抽出する。
// ファイル名のフォーマット: {timestamp}_{name}.sql (例: 20210502230816_initial.sql)
// IDは拡張子を除いたファイル名全体。
func parseMigrationFileName(filename string) (id, name string, err error) {
	id = strings.TrimSuffix(filename, ".sql")

	parts := strings.SplitN(id, "_", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %s (expected format: {timestamp}_{name}.sql)", domain.ErrInvalidMigrationFile, filename)
	}

	return id, parts[1], nil
}

// parseMigrationFile は Up / Down セクションを切り出す。
// マーカーがないセクションは空のまま返し、構成の検証は Descriptor.Validate に任せる。
// Down マーカーの後ろに "irreversible" がある場合は取り消し不能として扱う。
func parseMigrationFile(content string) (domain.Descriptor, error) {
	upIdx := strings.Index(content, upMarker)
	downIdx := strings.Index(content, downMarker)
	if upIdx != -1 && downIdx != -1 && downIdx < upIdx {
		return domain.Descriptor{}, fmt.Errorf("%q must precede %q", upMarker, downMarker)
	}

	var d domain.Descriptor
	if upIdx != -1 {
		end := len(content)
		if downIdx != -1 {
			end = downIdx
		}
		if up := strings.TrimSpace(content[upIdx+len(upMarker) : end]); up != "" {
			d.Up = []domain.Operation{domain.ExecSQL{SQL: up}}
		}
	}
	if downIdx == -1 {
		return d, nil
	}

	rest := content[downIdx+len(downMarker):]
	header, body, _ := strings.Cut(rest, "\n")
	down := strings.TrimSpace(body)
	switch strings.TrimSpace(header) {
	case "":
	case irreversibleMarker:
		if down != "" {
			return domain.Descriptor{}, fmt.Errorf("irreversible down section must be empty")
		}
		d.Irreversible = true
	default:
		return domain.Descriptor{}, fmt.Errorf("unexpected text after %q: %q", downMarker, strings.TrimSpace(header))
	}
	if down != "" {
		d.Down = []domain.Operation{domain.ExecSQL{SQL: down}}
	}

	return d, nil
}

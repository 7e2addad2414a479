package schema

import (
	"fmt"
	"slices"

	"schema-migrator/internal/domain"
)

// Timestamps は created_at / updated_at を返す。どちらもNOT NULLで現在時刻がデフォルト。
func Timestamps() []domain.Column {
	return []domain.Column{
		nowColumn("created_at"),
		nowColumn("updated_at"),
	}
}

// SoftDelete は論理削除用の deleted_at を返す。
func SoftDelete() domain.Column {
	return nowColumn("deleted_at")
}

// DefaultColumns は全テーブル共通のカラム（タイムスタンプと論理削除）を返す。
func DefaultColumns() []domain.Column {
	return append(Timestamps(), SoftDelete())
}

func nowColumn(name string) domain.Column {
	now := Now
	return domain.Column{
		Name:    name,
		Type:    domain.ColumnType{Kind: domain.TypeDateTime},
		Default: &now,
	}
}

// Inverse は ops を逆順にたどり、各操作の逆操作を返す。
// 逆操作を導出できない操作（DropTable, SetDefault など）を含む場合は ErrNotReversible を返す。
func Inverse(ops []domain.Operation) ([]domain.Operation, error) {
	inv := make([]domain.Operation, 0, len(ops))
	for _, op := range slices.Backward(ops) {
		r, err := inverseOf(op)
		if err != nil {
			return nil, err
		}
		inv = append(inv, r)
	}
	return inv, nil
}

// MustInverse は Inverse と同じだが、失敗時にpanicする。パッケージ初期化時の定義用。
func MustInverse(ops []domain.Operation) []domain.Operation {
	inv, err := Inverse(ops)
	if err != nil {
		panic(err)
	}
	return inv
}

func inverseOf(op domain.Operation) (domain.Operation, error) {
	switch o := op.(type) {
	case domain.CreateTable:
		return domain.DropTable{Table: o.Table}, nil
	case domain.AddColumn:
		return domain.DropColumn{Table: o.Table, Column: o.Column.Name}, nil
	case domain.AddForeignKey:
		return domain.DropForeignKey{Table: o.Table, Name: o.ForeignKey.Name}, nil
	case domain.AddIndex:
		return domain.DropIndex{Table: o.Table, Name: o.Index.Name}, nil
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrNotReversible, op.Kind())
	}
}

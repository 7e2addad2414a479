// Package schema はディスクリプタの操作列を組み立てる型付きビルダーを提供する。
package schema

import (
	"fmt"
	"strings"

	"schema-migrator/internal/domain"
)

const defaultStringLength = 255

// Now は現在時刻を表すデフォルト式。
const Now = "CURRENT_TIMESTAMP"

// Table はテーブル定義を組み立てる。
type Table struct {
	name        string
	columns     []*ColumnBuilder
	foreignKeys []domain.ForeignKey
}

// ColumnBuilder はカラムの修飾子を設定する。
type ColumnBuilder struct {
	col domain.Column
}

// NotNull はカラムをNOT NULLにする。
func (c *ColumnBuilder) NotNull() *ColumnBuilder {
	c.col.Nullable = false
	return c
}

// Unique はカラムに一意制約を付ける。
func (c *ColumnBuilder) Unique() *ColumnBuilder {
	c.col.Unique = true
	return c
}

// Default はデフォルト値をSQL式で設定する。文字列リテラルには Literal を使う。
func (c *ColumnBuilder) Default(expr string) *ColumnBuilder {
	c.col.Default = &expr
	return c
}

// Column は組み立て済みのカラム定義を返す。
func (c *ColumnBuilder) Column() domain.Column {
	return c.col
}

// CreateTable は define で組み立てたテーブルの作成操作を返す。
func CreateTable(name string, define func(t *Table)) domain.CreateTable {
	t := &Table{name: name}
	define(t)
	return t.operation()
}

func (t *Table) add(name string, typ domain.ColumnType) *ColumnBuilder {
	c := &ColumnBuilder{col: domain.Column{Name: name, Type: typ, Nullable: true}}
	t.columns = append(t.columns, c)
	return c
}

// Increments は自動採番の主キー "id" を追加する。
func (t *Table) Increments() *ColumnBuilder {
	return t.add("id", domain.ColumnType{Kind: domain.TypeIncrements}).NotNull()
}

// Integer は整数カラムを追加する。
func (t *Table) Integer(name string) *ColumnBuilder {
	return t.add(name, domain.ColumnType{Kind: domain.TypeInteger})
}

// UnsignedInteger は符号なし整数カラムを追加する。
func (t *Table) UnsignedInteger(name string) *ColumnBuilder {
	return t.add(name, domain.ColumnType{Kind: domain.TypeUnsigned})
}

// String は可変長文字列カラムを追加する。length が0以下の場合は255。
func (t *Table) String(name string, length int) *ColumnBuilder {
	if length <= 0 {
		length = defaultStringLength
	}
	return t.add(name, domain.ColumnType{Kind: domain.TypeString, Length: length})
}

// Text はテキストカラムを追加する。
func (t *Table) Text(name string) *ColumnBuilder {
	return t.add(name, domain.ColumnType{Kind: domain.TypeText})
}

// Float は浮動小数点カラムを追加する。
func (t *Table) Float(name string) *ColumnBuilder {
	return t.add(name, domain.ColumnType{Kind: domain.TypeFloat})
}

// Boolean は真偽値カラムを追加する。
func (t *Table) Boolean(name string) *ColumnBuilder {
	return t.add(name, domain.ColumnType{Kind: domain.TypeBoolean})
}

// DateTime は日時カラムを追加する。
func (t *Table) DateTime(name string) *ColumnBuilder {
	return t.add(name, domain.ColumnType{Kind: domain.TypeDateTime})
}

// Timestamp はタイムスタンプカラムを追加する。
func (t *Table) Timestamp(name string) *ColumnBuilder {
	return t.add(name, domain.ColumnType{Kind: domain.TypeTimestamp})
}

// Include はテンプレートのカラムをそのまま追加する。
func (t *Table) Include(cols ...domain.Column) {
	for _, col := range cols {
		t.columns = append(t.columns, &ColumnBuilder{col: col})
	}
}

// References は "<table>_id" カラムと、参照先テーブルの id への外部キーを追加する。
func (t *Table) References(table string) *ColumnBuilder {
	col := table + "_id"
	c := t.UnsignedInteger(col)
	t.foreignKeys = append(t.foreignKeys, ForeignKeyName(t.name, col, table, "id"))
	return c
}

func (t *Table) operation() domain.CreateTable {
	op := domain.CreateTable{Table: t.name}
	for _, c := range t.columns {
		op.Columns = append(op.Columns, c.col)
	}
	op.ForeignKeys = append(op.ForeignKeys, t.foreignKeys...)
	return op
}

// ForeignKeyName は "fk_<table>_<column>" の名前付き外部キーを返す。
func ForeignKeyName(table, column, refTable, refColumn string) domain.ForeignKey {
	return domain.ForeignKey{
		Name:      fmt.Sprintf("fk_%s_%s", table, column),
		Column:    column,
		RefTable:  refTable,
		RefColumn: refColumn,
	}
}

// IndexOn は "idx_<table>_<columns>" の名前付きインデックス追加操作を返す。
func IndexOn(table string, unique bool, columns ...string) domain.AddIndex {
	return domain.AddIndex{
		Table: table,
		Index: domain.Index{
			Name:    "idx_" + table + "_" + strings.Join(columns, "_"),
			Columns: columns,
			Unique:  unique,
		},
	}
}

// Literal は文字列をSQLの文字列リテラルにする。
func Literal(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

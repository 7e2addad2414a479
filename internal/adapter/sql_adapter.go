package adapter

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"schema-migrator/internal/domain"
)

var allowedOnDelete = map[string]bool{
	"CASCADE":     true,
	"SET NULL":    true,
	"SET DEFAULT": true,
	"RESTRICT":    true,
	"NO ACTION":   true,
}

// SQLAdapter は操作をSQLに変換し、ランナーから渡されたトランザクション上で実行する。
// 失敗は AdapterError で包み、リトライしない。
type SQLAdapter struct {
	dialect *Dialect
}

// NewSQLAdapter は新しいSQLAdapterを生成する。
func NewSQLAdapter(dialect *Dialect) *SQLAdapter {
	return &SQLAdapter{dialect: dialect}
}

// DialectName はアダプタのダイアレクト名を返す。
func (a *SQLAdapter) DialectName() string {
	return a.dialect.Name
}

// TransactionalDDL はDDLをロールバックできるかを返す。
func (a *SQLAdapter) TransactionalDDL() bool {
	return a.dialect.transactionalDDL
}

// Apply は操作の種類に応じたメソッドに振り分ける。
func (a *SQLAdapter) Apply(ctx context.Context, tx *gorm.DB, op domain.Operation) error {
	switch o := op.(type) {
	case domain.CreateTable:
		return a.CreateTable(ctx, tx, o)
	case domain.DropTable:
		return a.DropTable(ctx, tx, o)
	case domain.AddColumn:
		return a.AddColumn(ctx, tx, o)
	case domain.DropColumn:
		return a.DropColumn(ctx, tx, o)
	case domain.AddForeignKey:
		return a.AddForeignKey(ctx, tx, o)
	case domain.DropForeignKey:
		return a.DropForeignKey(ctx, tx, o)
	case domain.AddIndex:
		return a.AddIndex(ctx, tx, o)
	case domain.DropIndex:
		return a.DropIndex(ctx, tx, o)
	case domain.SetDefault:
		return a.SetDefault(ctx, tx, o)
	case domain.SetNullable:
		return a.SetNullable(ctx, tx, o)
	case domain.ExecSQL:
		return a.ExecSQL(ctx, tx, o)
	case nil:
		return &domain.AdapterError{Operation: "unknown", Cause: fmt.Errorf("nil operation")}
	default:
		return &domain.AdapterError{Operation: op.Kind(), Table: op.TableName(), Cause: fmt.Errorf("unknown operation type %T", op)}
	}
}

// CreateTable はテーブルを作成する。
func (a *SQLAdapter) CreateTable(ctx context.Context, tx *gorm.DB, op domain.CreateTable) error {
	return a.run(ctx, tx, op)
}

// DropTable はテーブルを削除する。
func (a *SQLAdapter) DropTable(ctx context.Context, tx *gorm.DB, op domain.DropTable) error {
	return a.run(ctx, tx, op)
}

// AddColumn はカラムを追加する。
func (a *SQLAdapter) AddColumn(ctx context.Context, tx *gorm.DB, op domain.AddColumn) error {
	return a.run(ctx, tx, op)
}

// DropColumn はカラムを削除する。
func (a *SQLAdapter) DropColumn(ctx context.Context, tx *gorm.DB, op domain.DropColumn) error {
	return a.run(ctx, tx, op)
}

// AddForeignKey は外部キーを追加する。
func (a *SQLAdapter) AddForeignKey(ctx context.Context, tx *gorm.DB, op domain.AddForeignKey) error {
	return a.run(ctx, tx, op)
}

// DropForeignKey は外部キーを削除する。
func (a *SQLAdapter) DropForeignKey(ctx context.Context, tx *gorm.DB, op domain.DropForeignKey) error {
	return a.run(ctx, tx, op)
}

// AddIndex はインデックスを追加する。
func (a *SQLAdapter) AddIndex(ctx context.Context, tx *gorm.DB, op domain.AddIndex) error {
	return a.run(ctx, tx, op)
}

// DropIndex はインデックスを削除する。
func (a *SQLAdapter) DropIndex(ctx context.Context, tx *gorm.DB, op domain.DropIndex) error {
	return a.run(ctx, tx, op)
}

// SetDefault はカラムのデフォルト値を変更する。
func (a *SQLAdapter) SetDefault(ctx context.Context, tx *gorm.DB, op domain.SetDefault) error {
	return a.run(ctx, tx, op)
}

// SetNullable はカラムのNULL許可を変更する。
func (a *SQLAdapter) SetNullable(ctx context.Context, tx *gorm.DB, op domain.SetNullable) error {
	return a.run(ctx, tx, op)
}

// ExecSQL は生のSQLを実行する。
func (a *SQLAdapter) ExecSQL(ctx context.Context, tx *gorm.DB, op domain.ExecSQL) error {
	return a.run(ctx, tx, op)
}

func (a *SQLAdapter) run(ctx context.Context, tx *gorm.DB, op domain.Operation) error {
	stmt, err := a.SQL(op)
	if err != nil {
		return &domain.AdapterError{Operation: op.Kind(), Table: op.TableName(), Cause: err}
	}
	if err := tx.WithContext(ctx).Exec(stmt).Error; err != nil {
		return &domain.AdapterError{Operation: op.Kind(), Table: op.TableName(), Cause: err}
	}
	return nil
}

// SQL は操作をダイアレクトのSQL文に変換する。実行はしない。
func (a *SQLAdapter) SQL(op domain.Operation) (string, error) {
	if op == nil {
		return "", fmt.Errorf("nil operation")
	}
	if a.dialect.unsupported[op.Kind()] {
		return "", fmt.Errorf("%w: %s on %s", domain.ErrUnsupportedOperation, op.Kind(), a.dialect.Name)
	}

	q := a.dialect.Quote
	switch o := op.(type) {
	case domain.CreateTable:
		return a.createTableSQL(o)
	case domain.DropTable:
		if o.IfExists {
			return "DROP TABLE IF EXISTS " + q(o.Table), nil
		}
		return "DROP TABLE " + q(o.Table), nil
	case domain.AddColumn:
		def, err := a.columnDefinition(o.Column)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", q(o.Table), def), nil
	case domain.DropColumn:
		return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", q(o.Table), q(o.Column)), nil
	case domain.AddForeignKey:
		fk, err := a.foreignKeyClause(o.ForeignKey)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("ALTER TABLE %s ADD %s", q(o.Table), fk), nil
	case domain.DropForeignKey:
		if a.dialect.Name == "mysql" {
			return fmt.Sprintf("ALTER TABLE %s DROP FOREIGN KEY %s", q(o.Table), q(o.Name)), nil
		}
		return fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", q(o.Table), q(o.Name)), nil
	case domain.AddIndex:
		if len(o.Index.Columns) == 0 {
			return "", fmt.Errorf("index %q has no columns", o.Index.Name)
		}
		unique := ""
		if o.Index.Unique {
			unique = "UNIQUE "
		}
		return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)", unique, q(o.Index.Name), q(o.Table), a.quoteList(o.Index.Columns)), nil
	case domain.DropIndex:
		if a.dialect.Name == "mysql" {
			return fmt.Sprintf("DROP INDEX %s ON %s", q(o.Name), q(o.Table)), nil
		}
		return "DROP INDEX " + q(o.Name), nil
	case domain.SetDefault:
		if o.Default == nil {
			return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP DEFAULT", q(o.Table), q(o.Column)), nil
		}
		return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET DEFAULT %s", q(o.Table), q(o.Column), *o.Default), nil
	case domain.SetNullable:
		return a.setNullableSQL(o)
	case domain.ExecSQL:
		if strings.TrimSpace(o.SQL) == "" {
			return "", fmt.Errorf("empty sql")
		}
		return o.SQL, nil
	default:
		return "", fmt.Errorf("unknown operation type %T", op)
	}
}

func (a *SQLAdapter) createTableSQL(op domain.CreateTable) (string, error) {
	if len(op.Columns) == 0 {
		return "", fmt.Errorf("table %q has no columns", op.Table)
	}

	defs := make([]string, 0, len(op.Columns)+len(op.ForeignKeys))
	for _, col := range op.Columns {
		def, err := a.columnDefinition(col)
		if err != nil {
			return "", err
		}
		defs = append(defs, def)
	}
	for _, fk := range op.ForeignKeys {
		fkClause, err := a.foreignKeyClause(fk)
		if err != nil {
			return "", err
		}
		defs = append(defs, fkClause)
	}

	return fmt.Sprintf("CREATE TABLE %s (\n\t%s\n)", a.dialect.Quote(op.Table), strings.Join(defs, ",\n\t")), nil
}

func (a *SQLAdapter) columnDefinition(col domain.Column) (string, error) {
	if col.Name == "" {
		return "", fmt.Errorf("column name is empty")
	}
	typ, err := a.dialect.columnType(col.Type)
	if err != nil {
		return "", fmt.Errorf("column %q: %w", col.Name, err)
	}

	var b strings.Builder
	b.WriteString(a.dialect.Quote(col.Name))
	b.WriteByte(' ')
	b.WriteString(typ)
	// 自動採番の型は主キー制約まで含む
	if col.Type.Kind == domain.TypeIncrements {
		return b.String(), nil
	}
	if !col.Nullable {
		b.WriteString(" NOT NULL")
	}
	if col.Default != nil {
		b.WriteString(" DEFAULT ")
		b.WriteString(*col.Default)
	}
	if col.Unique {
		b.WriteString(" UNIQUE")
	}
	return b.String(), nil
}

func (a *SQLAdapter) foreignKeyClause(fk domain.ForeignKey) (string, error) {
	if fk.Column == "" || fk.RefTable == "" || fk.RefColumn == "" {
		return "", fmt.Errorf("foreign key %q is incomplete", fk.Name)
	}
	q := a.dialect.Quote

	var b strings.Builder
	if fk.Name != "" {
		b.WriteString("CONSTRAINT ")
		b.WriteString(q(fk.Name))
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "FOREIGN KEY (%s) REFERENCES %s (%s)", q(fk.Column), q(fk.RefTable), q(fk.RefColumn))
	if fk.OnDelete != "" {
		action := strings.ToUpper(fk.OnDelete)
		if !allowedOnDelete[action] {
			return "", fmt.Errorf("foreign key %q: invalid ON DELETE action %q", fk.Name, fk.OnDelete)
		}
		b.WriteString(" ON DELETE ")
		b.WriteString(action)
	}
	return b.String(), nil
}

func (a *SQLAdapter) setNullableSQL(op domain.SetNullable) (string, error) {
	q := a.dialect.Quote
	if a.dialect.Name == "mysql" {
		typ, err := a.dialect.columnType(op.Type)
		if err != nil {
			return "", fmt.Errorf("column %q: %w", op.Column, err)
		}
		null := "NOT NULL"
		if op.Nullable {
			null = "NULL"
		}
		return fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s %s %s", q(op.Table), q(op.Column), typ, null), nil
	}
	if op.Nullable {
		return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP NOT NULL", q(op.Table), q(op.Column)), nil
	}
	return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET NOT NULL", q(op.Table), q(op.Column)), nil
}

func (a *SQLAdapter) quoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = a.dialect.Quote(n)
	}
	return strings.Join(quoted, ", ")
}

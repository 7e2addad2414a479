package domain

// OperationKind は操作の種類を表す。
type OperationKind string

const (
	OpCreateTable    OperationKind = "create_table"
	OpDropTable      OperationKind = "drop_table"
	OpAddColumn      OperationKind = "add_column"
	OpDropColumn     OperationKind = "drop_column"
	OpAddForeignKey  OperationKind = "add_foreign_key"
	OpDropForeignKey OperationKind = "drop_foreign_key"
	OpAddIndex       OperationKind = "add_index"
	OpDropIndex      OperationKind = "drop_index"
	OpSetDefault     OperationKind = "set_default"
	OpSetNullable    OperationKind = "set_nullable"
	OpExecSQL        OperationKind = "exec_sql"
)

// Operation はスキーマまたはデータを変更する単一の操作。
// 実装は本パッケージの値型に限られる。
type Operation interface {
	Kind() OperationKind
	TableName() string
}

// TypeKind はダイアレクト非依存のカラム型。
type TypeKind string

const (
	TypeIncrements TypeKind = "increments"
	TypeInteger    TypeKind = "integer"
	TypeUnsigned   TypeKind = "unsigned_integer"
	TypeString     TypeKind = "string"
	TypeText       TypeKind = "text"
	TypeFloat      TypeKind = "float"
	TypeBoolean    TypeKind = "boolean"
	TypeDateTime   TypeKind = "datetime"
	TypeTimestamp  TypeKind = "timestamp"
)

// ColumnType はカラム型と長さ（string型のみ）を表す。
type ColumnType struct {
	Kind   TypeKind
	Length int
}

// Column はカラム定義を表す。
type Column struct {
	Name     string
	Type     ColumnType
	Nullable bool
	// Default はSQL式そのもの（文字列リテラルはクォート済み）。nil はデフォルトなし。
	Default *string
	Unique  bool
}

// ForeignKey は外部キー制約を表す。
type ForeignKey struct {
	Name      string
	Column    string
	RefTable  string
	RefColumn string
	OnDelete  string
}

// Index はインデックス定義を表す。
type Index struct {
	Name    string
	Columns []string
	Unique  bool
}

// CreateTable はテーブル作成操作。
type CreateTable struct {
	Table       string
	Columns     []Column
	ForeignKeys []ForeignKey
}

// DropTable はテーブル削除操作。
type DropTable struct {
	Table    string
	IfExists bool
}

// AddColumn はカラム追加操作。
type AddColumn struct {
	Table  string
	Column Column
}

// DropColumn はカラム削除操作。
type DropColumn struct {
	Table  string
	Column string
}

// AddForeignKey は既存テーブルへの外部キー追加操作。
type AddForeignKey struct {
	Table      string
	ForeignKey ForeignKey
}

// DropForeignKey は外部キー削除操作。
type DropForeignKey struct {
	Table string
	Name  string
}

// AddIndex はインデックス追加操作。
type AddIndex struct {
	Table string
	Index Index
}

// DropIndex はインデックス削除操作。
type DropIndex struct {
	Table string
	Name  string
}

// SetDefault はカラムのデフォルト値を変更する。Default が nil の場合はデフォルトを削除する。
type SetDefault struct {
	Table   string
	Column  string
	Default *string
}

// SetNullable はカラムのNULL許可を変更する。MySQLではカラム型の再指定が必要なため Type を持つ。
type SetNullable struct {
	Table    string
	Column   string
	Type     ColumnType
	Nullable bool
}

// ExecSQL は生のSQLを実行する。ファイル由来のディスクリプタで使われる。
type ExecSQL struct {
	SQL string
}

func (CreateTable) Kind() OperationKind    { return OpCreateTable }
func (DropTable) Kind() OperationKind      { return OpDropTable }
func (AddColumn) Kind() OperationKind      { return OpAddColumn }
func (DropColumn) Kind() OperationKind     { return OpDropColumn }
func (AddForeignKey) Kind() OperationKind  { return OpAddForeignKey }
func (DropForeignKey) Kind() OperationKind { return OpDropForeignKey }
func (AddIndex) Kind() OperationKind       { return OpAddIndex }
func (DropIndex) Kind() OperationKind      { return OpDropIndex }
func (SetDefault) Kind() OperationKind     { return OpSetDefault }
func (SetNullable) Kind() OperationKind    { return OpSetNullable }
func (ExecSQL) Kind() OperationKind        { return OpExecSQL }

func (o CreateTable) TableName() string    { return o.Table }
func (o DropTable) TableName() string      { return o.Table }
func (o AddColumn) TableName() string      { return o.Table }
func (o DropColumn) TableName() string     { return o.Table }
func (o AddForeignKey) TableName() string  { return o.Table }
func (o DropForeignKey) TableName() string { return o.Table }
func (o AddIndex) TableName() string       { return o.Table }
func (o DropIndex) TableName() string      { return o.Table }
func (o SetDefault) TableName() string     { return o.Table }
func (o SetNullable) TableName() string    { return o.Table }
func (ExecSQL) TableName() string          { return "" }

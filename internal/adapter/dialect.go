// Package adapter はスキーマ操作を各データベースのDDLに変換して実行する。
package adapter

import (
	"fmt"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm/clause"

	"schema-migrator/internal/domain"
)

// quoter は識別子のクォートを gorm のダイアレクタに委ねる。
type quoter interface {
	QuoteTo(writer clause.Writer, str string)
}

// Dialect はダイアレクトごとの型名と構文の差異を表す。
type Dialect struct {
	Name             string
	quoter           quoter
	types            map[domain.TypeKind]string
	transactionalDDL bool
	unsupported      map[domain.OperationKind]bool
}

// Quote は識別子をクォートする。
func (d *Dialect) Quote(name string) string {
	var b strings.Builder
	d.quoter.QuoteTo(&b, name)
	return b.String()
}

func (d *Dialect) columnType(t domain.ColumnType) (string, error) {
	name, ok := d.types[t.Kind]
	if !ok {
		return "", fmt.Errorf("unknown column type %q", t.Kind)
	}
	if t.Kind == domain.TypeString {
		length := t.Length
		if length <= 0 {
			length = 255
		}
		return fmt.Sprintf("%s(%d)", name, length), nil
	}
	return name, nil
}

// MySQL はMySQL用のダイアレクト。MySQLのDDLは暗黙的にコミットされる。
func MySQL() *Dialect {
	return &Dialect{
		Name:   "mysql",
		quoter: mysql.New(mysql.Config{}),
		types: map[domain.TypeKind]string{
			domain.TypeIncrements: "INT UNSIGNED AUTO_INCREMENT PRIMARY KEY",
			domain.TypeInteger:    "INT",
			domain.TypeUnsigned:   "INT UNSIGNED",
			domain.TypeString:     "VARCHAR",
			domain.TypeText:       "TEXT",
			domain.TypeFloat:      "FLOAT(8,2)",
			domain.TypeBoolean:    "BOOLEAN",
			domain.TypeDateTime:   "DATETIME",
			domain.TypeTimestamp:  "TIMESTAMP",
		},
		transactionalDDL: false,
	}
}

// Postgres はPostgreSQL用のダイアレクト。
func Postgres() *Dialect {
	return &Dialect{
		Name:   "postgres",
		quoter: postgres.New(postgres.Config{}),
		types: map[domain.TypeKind]string{
			domain.TypeIncrements: "SERIAL PRIMARY KEY",
			domain.TypeInteger:    "INTEGER",
			domain.TypeUnsigned:   "INTEGER",
			domain.TypeString:     "VARCHAR",
			domain.TypeText:       "TEXT",
			domain.TypeFloat:      "REAL",
			domain.TypeBoolean:    "BOOLEAN",
			domain.TypeDateTime:   "TIMESTAMP",
			domain.TypeTimestamp:  "TIMESTAMPTZ",
		},
		transactionalDDL: true,
	}
}

// SQLite はSQLite用のダイアレクト。ALTER TABLE の制約変更はサポートしない。
func SQLite() *Dialect {
	return &Dialect{
		Name:   "sqlite",
		quoter: sqlite.Open(""),
		types: map[domain.TypeKind]string{
			domain.TypeIncrements: "INTEGER PRIMARY KEY AUTOINCREMENT",
			domain.TypeInteger:    "INTEGER",
			domain.TypeUnsigned:   "INTEGER",
			domain.TypeString:     "VARCHAR",
			domain.TypeText:       "TEXT",
			domain.TypeFloat:      "REAL",
			domain.TypeBoolean:    "BOOLEAN",
			domain.TypeDateTime:   "DATETIME",
			domain.TypeTimestamp:  "TIMESTAMP",
		},
		transactionalDDL: true,
		unsupported: map[domain.OperationKind]bool{
			domain.OpAddForeignKey:  true,
			domain.OpDropForeignKey: true,
			domain.OpSetDefault:     true,
			domain.OpSetNullable:    true,
		},
	}
}

// DialectFor はドライバ名からダイアレクトを返す。
func DialectFor(driver string) (*Dialect, error) {
	switch driver {
	case "mysql":
		return MySQL(), nil
	case "postgres":
		return Postgres(), nil
	case "sqlite":
		return SQLite(), nil
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
}

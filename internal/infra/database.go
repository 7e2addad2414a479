// Package infra は外部サービスとの接続を提供する。
package infra

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"schema-migrator/config"
)

// mysqlTLS はsslModeをgo-sql-driver/mysqlのtlsパラメータに対応付ける。
var mysqlTLS = map[string]string{
	"disable":     "false",
	"allow":       "preferred",
	"prefer":      "preferred",
	"require":     "skip-verify",
	"verify-ca":   "true",
	"verify-full": "true",
}

// Dialector は接続設定からgormのダイアレクタを生成する。
func Dialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "mysql":
		return mysql.Open(MySQLDSN(cfg)), nil
	case "postgres":
		return postgres.Open(PostgresDSN(cfg)), nil
	case "sqlite":
		return sqlite.Open(SQLiteDSN(cfg)), nil
	default:
		return nil, fmt.Errorf("unsupported driver %q", cfg.Driver)
	}
}

// MySQLDSN はMySQLの接続文字列を生成する。ファイル由来のSQLのため複数文を許可する。
func MySQLDSN(cfg config.DatabaseConfig) string {
	c := mysqldriver.NewConfig()
	c.User = cfg.User
	c.Passwd = cfg.Password
	c.Net = "tcp"
	c.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	c.DBName = cfg.Database
	c.ParseTime = true
	c.MultiStatements = true
	c.TLSConfig = mysqlTLS[cfg.SSLMode]
	return c.FormatDSN()
}

// PostgresDSN はPostgreSQLのキーワード形式の接続文字列を生成する。
func PostgresDSN(cfg config.DatabaseConfig) string {
	parts := []string{
		"host=" + quoteDSNValue(cfg.Host),
		"port=" + strconv.Itoa(cfg.Port),
		"user=" + quoteDSNValue(cfg.User),
		"password=" + quoteDSNValue(cfg.Password),
		"dbname=" + quoteDSNValue(cfg.Database),
		"sslmode=" + quoteDSNValue(cfg.SSLMode),
	}
	return strings.Join(parts, " ")
}

// SQLiteDSN はSQLiteのファイルパスに外部キー制約の有効化を付与する。
func SQLiteDSN(cfg config.DatabaseConfig) string {
	sep := "?"
	if strings.Contains(cfg.Database, "?") {
		sep = "&"
	}
	return cfg.Database + sep + "_foreign_keys=1&_busy_timeout=5000"
}

func quoteDSNValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

// NewDB はgormによるデータベース接続を初期化する。
func NewDB(cfg *config.Config) (*gorm.DB, error) {
	dialector, err := Dialector(cfg.Database)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	if cfg.OtelEnabled {
		if err := db.Use(tracing.NewPlugin()); err != nil {
			return nil, fmt.Errorf("registering tracing plugin: %w", err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 接続プール設定
	if cfg.Database.Driver == "sqlite" {
		// SQLiteは単一ライター
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(5)
	}
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

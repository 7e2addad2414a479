// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"

	"schema-migrator/internal/domain"
)

// DatabaseConfig はマイグレーション対象データベースへの接続設定を表す。
type DatabaseConfig struct {
	Driver   string `env:"DRIVER" envDefault:"mysql"`
	Host     string `env:"HOST"`
	Port     int    `env:"PORT"`
	User     string `env:"USER"`
	Password string `env:"PASSWORD"`
	Database string `env:"NAME"`
	SSLMode  string `env:"SSLMODE" envDefault:"disable"`

	// PasswordCiphertext はKMSで暗号化されたパスワード（Base64）。Password の代わりに使える。
	PasswordCiphertext string `env:"PASSWORD_CIPHERTEXT"`
}

// Config はアプリケーション設定を表す。
type Config struct {
	Database DatabaseConfig `envPrefix:"DB_"`

	Port           string `env:"PORT" envDefault:"8080"`
	MigrationsDir  string `env:"MIGRATIONS_DIR"`
	MigrateOnStart bool   `env:"MIGRATE_ON_START"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"INFO"`

	KMSKeyName         string `env:"KMS_KEY_NAME"`
	GoogleCloudProject string `env:"GOOGLE_CLOUD_PROJECT"`

	OtelEnabled      bool    `env:"OTEL_ENABLED"`
	OtelEndpoint     string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	OtelInsecure     bool    `env:"OTEL_EXPORTER_OTLP_INSECURE"`
	OtelServiceName  string  `env:"OTEL_SERVICE_NAME" envDefault:"schema-migrator"`
	OtelSamplingRate float64 `env:"OTEL_SAMPLING_RATE" envDefault:"1.0"`
}

var defaultPorts = map[string]int{
	"mysql":    3306,
	"postgres": 5432,
}

var sslModes = map[string]bool{
	"disable":     true,
	"allow":       true,
	"prefer":      true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// Load は環境変数から設定を読み込み、検証する。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		var aggErr env.AggregateError
		if errors.As(err, &aggErr) && len(aggErr.Errors) > 0 {
			return nil, &domain.ConfigError{Field: "env", Reason: aggErr.Errors[0].Error()}
		}
		return nil, &domain.ConfigError{Field: "env", Reason: err.Error()}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate は接続設定を検証し、不足があれば *domain.ConfigError を返す。
// 明示的に組み立てた Config にも使える。ポート未指定時はドライバの既定値を補う。
func (c *Config) Validate() error {
	db := &c.Database
	switch db.Driver {
	case "sqlite":
		if db.Database == "" {
			return &domain.ConfigError{Field: "DB_NAME", Reason: "database file path is required for sqlite"}
		}
		return nil
	case "mysql", "postgres":
	default:
		return &domain.ConfigError{Field: "DB_DRIVER", Reason: fmt.Sprintf("unsupported driver %q (mysql, postgres, sqlite)", db.Driver)}
	}

	if db.Host == "" {
		return &domain.ConfigError{Field: "DB_HOST", Reason: "is required"}
	}
	if db.User == "" {
		return &domain.ConfigError{Field: "DB_USER", Reason: "is required"}
	}
	if db.Password == "" && db.PasswordCiphertext == "" {
		return &domain.ConfigError{Field: "DB_PASSWORD", Reason: "is required (or set DB_PASSWORD_CIPHERTEXT)"}
	}
	if db.PasswordCiphertext != "" && c.KMSKeyName == "" {
		return &domain.ConfigError{Field: "KMS_KEY_NAME", Reason: "is required when DB_PASSWORD_CIPHERTEXT is set"}
	}
	if db.Database == "" {
		return &domain.ConfigError{Field: "DB_NAME", Reason: "is required"}
	}
	if !sslModes[db.SSLMode] {
		return &domain.ConfigError{Field: "DB_SSLMODE", Reason: fmt.Sprintf("unsupported mode %q", db.SSLMode)}
	}
	if db.Port == 0 {
		db.Port = defaultPorts[db.Driver]
	}
	if db.Port < 0 || db.Port > 65535 {
		return &domain.ConfigError{Field: "DB_PORT", Reason: fmt.Sprintf("out of range: %d", db.Port)}
	}
	return nil
}

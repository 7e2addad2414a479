// Package app は設定から各コンポーネントを組み立てる。
package app

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"schema-migrator/config"
	"schema-migrator/internal/adapter"
	"schema-migrator/internal/infra"
	"schema-migrator/internal/registry"
	"schema-migrator/internal/repository"
	"schema-migrator/internal/usecase"
	"schema-migrator/migrations"
)

// App は組み立て済みのコンポーネント。
type App struct {
	DB       *gorm.DB
	Registry *registry.Registry
	Service  *usecase.MigrationService
}

// New はデータベースに接続し、ランナーを組み立てる。
// DB_PASSWORD_CIPHERTEXT が設定されている場合はCloud KMSでパスワードを復号してから接続する。
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg.Database.PasswordCiphertext != "" {
		kmsClient, err := infra.NewKMSClient(ctx, cfg.KMSKeyName)
		if err != nil {
			return nil, err
		}
		defer func() {
			if closeErr := kmsClient.Close(); closeErr != nil {
				slog.ErrorContext(ctx, "failed to close KMS client", "error", closeErr)
			}
		}()
		if err := infra.ResolvePassword(ctx, &cfg.Database, kmsClient); err != nil {
			return nil, err
		}
	}

	dialect, err := adapter.DialectFor(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}

	db, err := infra.NewDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	locker, err := infra.NewLocker(cfg.Database.Driver, db)
	if err != nil {
		return nil, err
	}

	reg := NewRegistry(cfg)
	service := usecase.NewMigrationService(reg, repository.NewLedgerRepository(db), adapter.NewSQLAdapter(dialect), db)
	service.SetLocker(locker)

	return &App{
		DB:       db,
		Registry: reg,
		Service:  service,
	}, nil
}

// NewRegistry はGoで定義したディスクリプタと、MIGRATIONS_DIR のSQLファイルを集めるレジストリを返す。
func NewRegistry(cfg *config.Config) *registry.Registry {
	reg := registry.New(migrations.Source())
	if cfg.MigrationsDir != "" {
		reg.AddSource(registry.NewFileSource(cfg.MigrationsDir))
	}
	return reg
}

// Close はデータベース接続を閉じる。
func (a *App) Close() error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Package main はマイグレーション状態を公開するAPIサーバーのエントリポイント。
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"schema-migrator/config"
	"schema-migrator/internal/app"
	"schema-migrator/internal/domain"
	"schema-migrator/internal/handler"
	"schema-migrator/internal/infra"
	"schema-migrator/internal/middleware"
)

const version = "1.0.0"

func main() {
	// .envファイルを読み込む（存在しない場合は無視）
	// 既存の環境変数は上書きしない
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	err := run(ctx)
	stop()
	if err != nil {
		slog.Error("server exited with error", "error", err)
	}
	os.Exit(exitCode(err))
}

// exitCode は設定エラーを2、それ以外の失敗を1に対応付ける。
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var cfgErr *domain.ConfigError
	if errors.As(err, &cfgErr) {
		return 2
	}
	return 1
}

// run はサーバーを起動し、ctx がキャンセルされるまで処理する。
// 終了時はDB接続とトレーサーを必ず閉じる。
func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// トレーサー初期化（ロガー設定の前に実行）
	shutdownTracer, err := infra.InitTracer(ctx, cfg, version)
	if err != nil {
		return fmt.Errorf("failed to init tracer: %w", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			slog.Error("failed to shutdown tracer", "error", err)
		}
	}()

	// トレース情報付きロガーを設定
	infra.SetupLogger(os.Stdout, cfg)

	// DI
	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to init application: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Error("failed to close database", "error", err)
		}
	}()

	if cfg.MigrateOnStart {
		report, err := a.Service.UpTo(ctx, domain.TargetLatest)
		middleware.AuditReport(ctx, "MIGRATE_ON_START", report, err)
		if err != nil {
			return fmt.Errorf("failed to migrate on start: %w", err)
		}
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.NewRouter(handler.NewMigrationHandler(a.Service), cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "port", cfg.Port, "driver", cfg.Database.Driver)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	// Graceful shutdown
	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	slog.Info("server stopped")
	return nil
}

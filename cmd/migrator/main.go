// Package main はマイグレーションCLIのエントリポイント。
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"schema-migrator/internal/domain"
)

const version = "1.0.0"

// 終了コード
const (
	exitOK          = 0
	exitFailure     = 1
	exitConfigError = 2
)

func main() {
	// .envファイルを読み込む（存在しない場合は無視）
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "migrator",
		Short:         "Database schema migration tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// サブコマンド登録
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(versionCmd())
	return rootCmd
}

// exitCode は設定エラーを2、それ以外の失敗を1に対応付ける。
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var cfgErr *domain.ConfigError
	if errors.As(err, &cfgErr) {
		return exitConfigError
	}
	return exitFailure
}

// versionCmd はバージョン情報を表示する。
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "migrator version %s\n", version)
		},
	}
}

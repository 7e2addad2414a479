package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"schema-migrator/config"
	"schema-migrator/internal/app"
	"schema-migrator/internal/domain"
	"schema-migrator/internal/infra"
	"schema-migrator/internal/middleware"
	"schema-migrator/internal/registry"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long:  "Apply, revert and inspect schema migrations recorded in the migrations ledger",
	}
	cmd.AddCommand(migrateUpCmd())
	cmd.AddCommand(migrateDownCmd())
	cmd.AddCommand(migrateStatusCmd())
	cmd.AddCommand(migratePendingCmd())
	cmd.AddCommand(migrateCreateCmd())
	return cmd
}

// withApp は設定を読み込み、ロガー・トレーサー・ランナーを初期化して fn を実行する。
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	shutdown, err := infra.InitTracer(ctx, cfg, version)
	if err != nil {
		return fmt.Errorf("failed to init tracer: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			slog.Error("failed to shutdown tracer", "error", err)
		}
	}()

	// 標準出力は結果表示に使うため、ログは標準エラーへ
	infra.SetupLogger(cmd.ErrOrStderr(), cfg)

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Error("failed to close database", "error", err)
		}
	}()

	return fn(ctx, a)
}

func migrateUpCmd() *cobra.Command {
	var target string
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Long:  "Apply pending migrations in ascending id order up to --to (default: latest)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				out := cmd.OutOrStdout()

				if dryRun {
					return printPending(ctx, out, a, target, "Would apply")
				}

				report, err := a.Service.UpTo(ctx, target)
				middleware.AuditReport(ctx, "MIGRATE_UP", report, err)
				printResults(out, "Applied", report)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				if len(report.Results) == 0 {
					fmt.Fprintln(out, "No pending migrations.")
				} else {
					fmt.Fprintf(out, "Applied %d migration(s) successfully.\n", len(report.Results))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&target, "to", domain.TargetLatest, "Target descriptor id")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the migrations that would be applied without running them")
	return cmd
}

func migrateDownCmd() *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Revert applied migrations",
		Long:  "Revert applied migrations above --to in descending id order (default: zero, revert all)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				out := cmd.OutOrStdout()

				report, err := a.Service.DownTo(ctx, target)
				middleware.AuditReport(ctx, "MIGRATE_DOWN", report, err)
				printResults(out, "Reverted", report)
				if err != nil {
					return fmt.Errorf("rollback failed: %w", err)
				}
				if len(report.Results) == 0 {
					fmt.Fprintln(out, "Nothing to revert.")
				} else {
					fmt.Fprintf(out, "Reverted %d migration(s) successfully.\n", len(report.Results))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&target, "to", domain.TargetZero, "Target descriptor id; migrations above it are reverted")
	return cmd
}

func migrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		Long:  "Show the status of all migrations (applied/pending/missing)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				entries, err := a.Service.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}

				// テーブル形式で出力
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tSTATUS\tAPPLIED AT")
				fmt.Fprintln(w, "--\t----\t------\t----------")
				for _, e := range entries {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.ID, e.Name, statusLabel(e), appliedAtLabel(e))
				}
				if err := w.Flush(); err != nil {
					return fmt.Errorf("failed to flush output: %w", err)
				}
				return nil
			})
		},
	}
}

func migratePendingCmd() *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List migrations that up would apply",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				return printPending(ctx, cmd.OutOrStdout(), a, target, "Pending")
			})
		},
	}
	cmd.Flags().StringVar(&target, "to", domain.TargetLatest, "Target descriptor id")
	return cmd
}

// printPending は target までに適用されるディスクリプタのIDを表示する。
func printPending(ctx context.Context, out io.Writer, a *app.App, target, verb string) error {
	pending, err := a.Service.PendingUpTo(ctx, target)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		fmt.Fprintln(out, "No pending migrations.")
		return nil
	}
	fmt.Fprintf(out, "%s %d migration(s):\n", verb, len(pending))
	for _, id := range pending {
		fmt.Fprintf(out, "  %s\n", id)
	}
	return nil
}

func migrateCreateCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a new SQL migration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				dir = os.Getenv("MIGRATIONS_DIR")
			}
			if dir == "" {
				return &domain.ConfigError{Field: "MIGRATIONS_DIR", Reason: "is required (or pass --dir)"}
			}
			path, err := registry.CreateMigrationFile(dir, args[0], time.Now().UTC())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Directory for SQL migrations (or set MIGRATIONS_DIR)")
	return cmd
}

func printResults(out io.Writer, verb string, report *domain.Report) {
	if report == nil {
		return
	}
	for _, res := range report.Results {
		if res.Err != nil {
			fmt.Fprintf(out, "  FAILED  %s: %v\n", res.ID, res.Err)
			continue
		}
		fmt.Fprintf(out, "  %s %s (%s)\n", verb, res.ID, res.Duration.Round(time.Millisecond))
	}
}

func statusLabel(e domain.StatusEntry) string {
	label := "pending"
	switch {
	case e.Missing:
		label = "applied (missing)"
	case e.Applied:
		label = "applied"
	}
	if e.Irreversible {
		label += ", irreversible"
	}
	return label
}

func appliedAtLabel(e domain.StatusEntry) string {
	if e.AppliedAt == nil {
		return "-"
	}
	return e.AppliedAt.Format("2006-01-02 15:04:05")
}

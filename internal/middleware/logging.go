// Package middleware はHTTPミドルウェアと監査ログを提供する。
package middleware

import (
	"context"
	"log/slog"
	"time"

	"schema-migrator/internal/domain"
)

// 監査ログの結果
const (
	ResultSuccess = "SUCCESS"
	ResultFailed  = "FAILED"
)

// AuditLog は監査ログの構造体。
type AuditLog struct {
	Operation   string   `json:"operation"`
	RunID       string   `json:"run_id,omitempty"`
	Target      string   `json:"target,omitempty"`
	Descriptors []string `json:"descriptors,omitempty"`
	Result      string   `json:"result"`
	Error       string   `json:"error,omitempty"`
	Timestamp   string   `json:"timestamp"`
}

// WriteAuditLog は監査ログを出力する。
func WriteAuditLog(ctx context.Context, entry AuditLog) {
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	attrs := []any{
		"operation", entry.Operation,
		"run_id", entry.RunID,
		"target", entry.Target,
		"descriptors", entry.Descriptors,
		"result", entry.Result,
		"timestamp", entry.Timestamp,
	}
	if entry.Error != "" {
		attrs = append(attrs, "error", entry.Error)
	}
	slog.InfoContext(ctx, "migration operation completed", attrs...)
}

// AuditReport はランナーの実行結果を監査ログとして出力する。
func AuditReport(ctx context.Context, operation string, report *domain.Report, err error) {
	entry := AuditLog{
		Operation: operation,
		Result:    ResultSuccess,
	}
	if report != nil {
		entry.RunID = report.RunID
		entry.Target = report.Target
		entry.Descriptors = report.Completed()
	}
	if err != nil {
		entry.Result = ResultFailed
		entry.Error = err.Error()
	}
	WriteAuditLog(ctx, entry)
}

package infra

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"schema-migrator/config"
)

// TraceHandler はスパンのIDをログレコードに付与するslogハンドラ。
// GOOGLE_CLOUD_PROJECT が設定されている場合はCloud Loggingのトレース連携フィールドも付与する。
type TraceHandler struct {
	next      slog.Handler
	projectID string
	enabled   bool
}

// NewTraceHandler は next をラップしたTraceHandlerを生成する。
func NewTraceHandler(next slog.Handler, cfg *config.Config) *TraceHandler {
	return &TraceHandler{
		next:      next,
		projectID: cfg.GoogleCloudProject,
		enabled:   cfg.OtelEnabled,
	}
}

func (h *TraceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle はスパンが有効な場合にトレース属性を付与して次のハンドラへ渡す。
func (h *TraceHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.enabled {
		r.AddAttrs(h.traceAttrs(trace.SpanContextFromContext(ctx))...)
	}
	return h.next.Handle(ctx, r)
}

func (h *TraceHandler) traceAttrs(sc trace.SpanContext) []slog.Attr {
	if !sc.IsValid() {
		return nil
	}
	traceID, spanID := sc.TraceID().String(), sc.SpanID().String()
	attrs := []slog.Attr{
		slog.String("trace", traceID),
		slog.String("spanId", spanID),
		slog.Bool("traceSampled", sc.IsSampled()),
	}
	if h.projectID != "" {
		attrs = append(attrs,
			slog.String("logging.googleapis.com/trace", fmt.Sprintf("projects/%s/traces/%s", h.projectID, traceID)),
			slog.String("logging.googleapis.com/spanId", spanID),
		)
	}
	return attrs
}

func (h *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.wrap(h.next.WithAttrs(attrs))
}

func (h *TraceHandler) WithGroup(name string) slog.Handler {
	return h.wrap(h.next.WithGroup(name))
}

func (h *TraceHandler) wrap(next slog.Handler) *TraceHandler {
	clone := *h
	clone.next = next
	return &clone
}

// ParseLevel はLOG_LEVELの値をslogのレベルに変換する。不明な値はINFO。
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogger はトレース情報付きのグローバルロガーを設定する。
// CLIは標準出力を人間向けの表示に使うため、w に標準エラーを渡す。
func SetupLogger(w io.Writer, cfg *config.Config) {
	jsonHandler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       ParseLevel(cfg.LogLevel),
		ReplaceAttr: cloudLoggingAttr,
	})
	slog.SetDefault(slog.New(NewTraceHandler(jsonHandler, cfg)))
}

// cloudLoggingAttr はトップレベルのキーをCloud Loggingの構造化ログの名前に合わせる。
func cloudLoggingAttr(groups []string, a slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return a
	}
	switch a.Key {
	case slog.LevelKey:
		a.Key = "severity"
		if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == slog.LevelWarn {
			a.Value = slog.StringValue("WARNING")
		}
	case slog.MessageKey:
		a.Key = "message"
	}
	return a
}

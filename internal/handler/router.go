package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"schema-migrator/config"
	"schema-migrator/internal/middleware"
)

// NewRouter はルーターを生成する。OTEL_ENABLED の場合は otelhttp でラップする。
func NewRouter(h *MigrationHandler, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	// ミドルウェア
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)

	// ルート定義
	r.Route("/v1/migrations", func(r chi.Router) {
		r.Get("/", h.ListMigrations)
		r.Get("/pending", h.ListPending)
	})

	if cfg != nil && cfg.OtelEnabled {
		return otelhttp.NewHandler(r, "schema-migrator")
	}
	return r
}

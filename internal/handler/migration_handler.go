// Package handler はHTTPハンドラを提供する。
package handler

import (
	"context"
	"net/http"
	"time"

	"schema-migrator/internal/domain"
	"schema-migrator/pkg/httputil"
)

// StatusService はマイグレーション状態を参照するサービスのインターフェース。
type StatusService interface {
	Status(ctx context.Context) ([]domain.StatusEntry, error)
	Pending(ctx context.Context) ([]string, error)
}

// MigrationHandler はマイグレーション状態を返すHTTPハンドラ。
type MigrationHandler struct {
	service StatusService
}

// NewMigrationHandler は新しいMigrationHandlerを生成する。
func NewMigrationHandler(service StatusService) *MigrationHandler {
	return &MigrationHandler{service: service}
}

// MigrationResponse はディスクリプタ1件のレスポンス形式。
type MigrationResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name,omitempty"`
	Applied      bool   `json:"applied"`
	AppliedAt    string `json:"applied_at,omitempty"`
	Irreversible bool   `json:"irreversible,omitempty"`
	Missing      bool   `json:"missing,omitempty"`
}

// MigrationListResponse はマイグレーション一覧のレスポンス形式。
type MigrationListResponse struct {
	Migrations []MigrationResponse `json:"migrations"`
	Applied    int                 `json:"applied"`
	Pending    int                 `json:"pending"`
}

// PendingResponse は未適用ディスクリプタのレスポンス形式。
type PendingResponse struct {
	Pending []string `json:"pending"`
}

// ListMigrations はレジストリと台帳を突き合わせた状態を返す。
func (h *MigrationHandler) ListMigrations(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.Status(r.Context())
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to read migration status")
		return
	}

	resp := MigrationListResponse{Migrations: make([]MigrationResponse, 0, len(entries))}
	for _, e := range entries {
		m := MigrationResponse{
			ID:           e.ID,
			Name:         e.Name,
			Applied:      e.Applied,
			Irreversible: e.Irreversible,
			Missing:      e.Missing,
		}
		if e.AppliedAt != nil {
			m.AppliedAt = e.AppliedAt.UTC().Format(time.RFC3339)
		}
		if e.Applied {
			resp.Applied++
		} else {
			resp.Pending++
		}
		resp.Migrations = append(resp.Migrations, m)
	}
	httputil.JSON(w, http.StatusOK, resp)
}

// ListPending は UpTo(latest) が適用するディスクリプタのIDを返す。
func (h *MigrationHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	pending, err := h.service.Pending(r.Context())
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to read pending migrations")
		return
	}
	if pending == nil {
		pending = []string{}
	}
	httputil.JSON(w, http.StatusOK, PendingResponse{Pending: pending})
}

// Healthz はプロセスの生存確認。
func (h *MigrationHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz は未適用のディスクリプタがなければ200、あれば503を返す。
func (h *MigrationHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	pending, err := h.service.Pending(r.Context())
	if err != nil {
		httputil.Error(w, http.StatusServiceUnavailable, "DATABASE_UNAVAILABLE", "failed to read migration state")
		return
	}
	if len(pending) > 0 {
		httputil.ErrorWithDetails(w, http.StatusServiceUnavailable, "MIGRATIONS_PENDING",
			"schema has pending migrations", PendingResponse{Pending: pending})
		return
	}
	httputil.JSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

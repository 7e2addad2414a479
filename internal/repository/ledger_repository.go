// Package repository はデータアクセス層の実装を提供する。
package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"schema-migrator/internal/domain"

	"gorm.io/gorm"
)

// LedgerTable は適用済みディスクリプタを記録するテーブル名。
const LedgerTable = "migrations_ledger"

// LedgerEntryModel はmigrations_ledgerテーブルのモデル。
type LedgerEntryModel struct {
	DescriptorID string    `gorm:"column:descriptor_id;primaryKey;type:varchar(255)"`
	AppliedAt    time.Time `gorm:"column:applied_at;not null"`
}

// TableName はテーブル名を指定。
func (LedgerEntryModel) TableName() string {
	return LedgerTable
}

// LedgerRepository は適用履歴の台帳を管理するリポジトリ。
// Record / Erase は tx を受け取り、ランナーのトランザクション内で実行される。
type LedgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository は新しいLedgerRepositoryを生成する。
func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx.WithContext(ctx)
	}
	return r.db.WithContext(ctx)
}

// EnsureTable は台帳テーブルが存在しなければ作成する。
func (r *LedgerRepository) EnsureTable(ctx context.Context) error {
	db := r.db.WithContext(ctx)
	if db.Migrator().HasTable(&LedgerEntryModel{}) {
		return nil
	}
	if err := db.Migrator().CreateTable(&LedgerEntryModel{}); err != nil {
		slog.ErrorContext(ctx, "failed to create ledger table",
			"operation", "ensure_table",
			"table", LedgerTable,
			"error", err,
		)
		return err
	}
	return nil
}

// FindAll は台帳の全行をID昇順で取得する。テーブルが未作成の場合は空を返す。
func (r *LedgerRepository) FindAll(ctx context.Context) ([]*domain.LedgerEntry, error) {
	db := r.db.WithContext(ctx)
	if !db.Migrator().HasTable(&LedgerEntryModel{}) {
		return nil, nil
	}

	var models []LedgerEntryModel
	if err := db.Order("descriptor_id ASC").Find(&models).Error; err != nil {
		slog.ErrorContext(ctx, "failed to find ledger entries",
			"operation", "find_all",
			"error", err,
		)
		return nil, err
	}

	entries := make([]*domain.LedgerEntry, len(models))
	for i, model := range models {
		entries[i] = &domain.LedgerEntry{
			DescriptorID: model.DescriptorID,
			AppliedAt:    model.AppliedAt,
		}
	}
	return entries, nil
}

// AppliedIDs は適用済みディスクリプタのID集合を返す。FindAll の集合としての見方で、
// 未適用ディスクリプタの計算のように所属だけを見る場合に使う。
func (r *LedgerRepository) AppliedIDs(ctx context.Context) (map[string]struct{}, error) {
	entries, err := r.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		ids[e.DescriptorID] = struct{}{}
	}
	return ids, nil
}

// Record はディスクリプタの適用を記録する。既に記録済みの場合は DuplicateApplyError を返す。
func (r *LedgerRepository) Record(ctx context.Context, tx *gorm.DB, id string, appliedAt time.Time) error {
	db := r.conn(ctx, tx)

	var count int64
	if err := db.Model(&LedgerEntryModel{}).Where("descriptor_id = ?", id).Count(&count).Error; err != nil {
		slog.ErrorContext(ctx, "failed to check ledger entry",
			"operation", "record",
			"descriptor_id", id,
			"error", err,
		)
		return err
	}
	if count > 0 {
		return &domain.DuplicateApplyError{ID: id}
	}

	model := &LedgerEntryModel{
		DescriptorID: id,
		AppliedAt:    appliedAt.UTC(),
	}
	if err := db.Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return &domain.DuplicateApplyError{ID: id}
		}
		slog.ErrorContext(ctx, "failed to record ledger entry",
			"operation", "record",
			"descriptor_id", id,
			"error", err,
		)
		return err
	}
	return nil
}

// Erase は台帳から記録を削除する。
func (r *LedgerRepository) Erase(ctx context.Context, tx *gorm.DB, id string) error {
	err := r.conn(ctx, tx).
		Where("descriptor_id = ?", id).
		Delete(&LedgerEntryModel{}).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to erase ledger entry",
			"operation", "erase",
			"descriptor_id", id,
			"error", err,
		)
		return err
	}
	return nil
}

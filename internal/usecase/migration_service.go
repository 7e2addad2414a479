// Package usecase はマイグレーションの計画と実行を担うユースケースを実装する。
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"schema-migrator/internal/domain"
)

// Registry は登録済みディスクリプタをID昇順で返す。
type Registry interface {
	List() ([]domain.Descriptor, error)
}

// LedgerRepository は適用履歴の台帳のインターフェース。
type LedgerRepository interface {
	EnsureTable(ctx context.Context) error
	FindAll(ctx context.Context) ([]*domain.LedgerEntry, error)
	AppliedIDs(ctx context.Context) (map[string]struct{}, error)
	Record(ctx context.Context, tx *gorm.DB, id string, appliedAt time.Time) error
	Erase(ctx context.Context, tx *gorm.DB, id string) error
}

// SchemaAdapter はスキーマ操作をデータベースに適用する。
type SchemaAdapter interface {
	Apply(ctx context.Context, tx *gorm.DB, op domain.Operation) error
	TransactionalDDL() bool
	DialectName() string
}

// Locker はランナーの排他ロック。
type Locker interface {
	Acquire(ctx context.Context) (release func(), err error)
}

var tracer = otel.Tracer("schema-migrator/internal/usecase")

// MigrationService はレジストリと台帳を突き合わせてディスクリプタを適用・取り消すランナー。
// ディスクリプタは1件ずつ順に、それぞれ独立したトランザクションで実行する。
type MigrationService struct {
	registry Registry
	ledger   LedgerRepository
	adapter  SchemaAdapter
	db       *gorm.DB
	locker   Locker
	now      func() time.Time
}

// NewMigrationService は新しいMigrationServiceを生成する。
func NewMigrationService(registry Registry, ledger LedgerRepository, adapter SchemaAdapter, db *gorm.DB) *MigrationService {
	return &MigrationService{
		registry: registry,
		ledger:   ledger,
		adapter:  adapter,
		db:       db,
		now:      time.Now,
	}
}

// SetLocker は実行時に取得する排他ロックを設定する。nilの場合はロックしない。
func (s *MigrationService) SetLocker(l Locker) {
	s.locker = l
}

// plan はレジストリと台帳の状態をまとめたもの。ledger は load で読んだ場合のみ設定される。
type plan struct {
	descriptors []domain.Descriptor
	byID        map[string]domain.Descriptor
	ledger      []*domain.LedgerEntry
	applied     map[string]struct{}
	maxApplied  string
}

// load は台帳の行（適用日時を含む）まで読み込む。
func (s *MigrationService) load(ctx context.Context) (*plan, error) {
	descriptors, err := s.registry.List()
	if err != nil {
		return nil, err
	}
	entries, err := s.ledger.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading ledger: %w", err)
	}

	applied := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		applied[e.DescriptorID] = struct{}{}
	}
	p := newPlan(descriptors, applied)
	p.ledger = entries
	return p, nil
}

// loadApplied は適用済みIDの集合だけを読み込む。
func (s *MigrationService) loadApplied(ctx context.Context) (*plan, error) {
	descriptors, err := s.registry.List()
	if err != nil {
		return nil, err
	}
	applied, err := s.ledger.AppliedIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading ledger: %w", err)
	}
	return newPlan(descriptors, applied), nil
}

func newPlan(descriptors []domain.Descriptor, applied map[string]struct{}) *plan {
	p := &plan{
		descriptors: descriptors,
		byID:        make(map[string]domain.Descriptor, len(descriptors)),
		applied:     applied,
	}
	for _, d := range descriptors {
		p.byID[d.ID] = d
	}
	for id := range applied {
		if id > p.maxApplied {
			p.maxApplied = id
		}
	}
	return p
}

// pendingUpTo は target までに適用すべきディスクリプタを昇順で返す。
// 台帳の最大IDより小さい未適用ディスクリプタは順序外として除外する。
func (p *plan) pendingUpTo(target string) (pending, outOfOrder []domain.Descriptor) {
	for _, d := range p.descriptors {
		if _, ok := p.applied[d.ID]; ok {
			continue
		}
		if d.ID > target {
			break
		}
		if d.ID < p.maxApplied {
			outOfOrder = append(outOfOrder, d)
			continue
		}
		pending = append(pending, d)
	}
	return pending, outOfOrder
}

func (p *plan) resolveUpTarget(target string) (string, error) {
	if target == "" || target == domain.TargetLatest {
		if len(p.descriptors) == 0 {
			return "", nil
		}
		return p.descriptors[len(p.descriptors)-1].ID, nil
	}
	if _, ok := p.byID[target]; !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrUnknownTarget, target)
	}
	return target, nil
}

func (p *plan) resolveDownTarget(target string) (string, error) {
	if target == "" || target == domain.TargetZero {
		return "", nil
	}
	if _, ok := p.byID[target]; !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrUnknownTarget, target)
	}
	return target, nil
}

// Pending は UpTo(latest) が適用するディスクリプタのIDを返す。データベースは変更しない。
func (s *MigrationService) Pending(ctx context.Context) ([]string, error) {
	return s.PendingUpTo(ctx, domain.TargetLatest)
}

// PendingUpTo は UpTo(target) が適用するディスクリプタのIDを実行順に返す。データベースは変更しない。
func (s *MigrationService) PendingUpTo(ctx context.Context, target string) ([]string, error) {
	p, err := s.loadApplied(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load migration plan",
			"operation", "pending",
			"error", err,
		)
		return nil, err
	}
	resolved, err := p.resolveUpTarget(target)
	if err != nil {
		return nil, err
	}
	pending, _ := p.pendingUpTo(resolved)
	ids := make([]string, len(pending))
	for i, d := range pending {
		ids[i] = d.ID
	}
	return ids, nil
}

// UpTo は target（"latest" または空の場合は最新）までの未適用ディスクリプタを昇順に適用する。
// 失敗した時点で停止し、そのディスクリプタの変更はロールバックされる。
func (s *MigrationService) UpTo(ctx context.Context, target string) (*domain.Report, error) {
	report := &domain.Report{
		RunID:     uuid.NewString(),
		Direction: domain.DirectionUp,
		Target:    target,
	}
	ctx, span := tracer.Start(ctx, "migration.up", trace.WithAttributes(
		attribute.String("migration.run_id", report.RunID),
		attribute.String("migration.target", target),
	))
	defer span.End()

	release, err := s.acquire(ctx)
	if err != nil {
		recordSpanError(span, err)
		return report, err
	}
	defer release()

	p, err := s.load(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load migration plan",
			"operation", "up",
			"run_id", report.RunID,
			"error", err,
		)
		recordSpanError(span, err)
		return report, err
	}
	resolved, err := p.resolveUpTarget(target)
	if err != nil {
		recordSpanError(span, err)
		return report, err
	}

	pending, outOfOrder := p.pendingUpTo(resolved)
	for _, d := range outOfOrder {
		slog.WarnContext(ctx, "skipping out-of-order descriptor",
			"operation", "up",
			"run_id", report.RunID,
			"descriptor_id", d.ID,
			"ledger_max", p.maxApplied,
		)
	}
	for _, d := range pending {
		report.Planned = append(report.Planned, d.ID)
	}
	if len(pending) == 0 {
		slog.InfoContext(ctx, "schema is up to date",
			"operation", "up",
			"run_id", report.RunID,
		)
		return report, nil
	}

	if err := s.ledger.EnsureTable(ctx); err != nil {
		recordSpanError(span, err)
		return report, fmt.Errorf("preparing ledger: %w", err)
	}
	s.warnNonTransactional(ctx, report.RunID)

	for _, d := range pending {
		res := s.apply(ctx, report.RunID, d)
		report.Results = append(report.Results, res)
		if res.Err != nil {
			recordSpanError(span, res.Err)
			return report, res.Err
		}
	}

	slog.InfoContext(ctx, "migrations applied",
		"operation", "up",
		"run_id", report.RunID,
		"count", len(report.Results),
	)
	return report, nil
}

// apply は1ディスクリプタのUp操作と台帳記録を同一トランザクションで実行する。
func (s *MigrationService) apply(ctx context.Context, runID string, d domain.Descriptor) domain.DescriptorResult {
	ctx, span := tracer.Start(ctx, "migration.apply", trace.WithAttributes(
		attribute.String("migration.descriptor_id", d.ID),
	))
	defer span.End()

	slog.InfoContext(ctx, "applying descriptor",
		"operation", "up",
		"run_id", runID,
		"descriptor_id", d.ID,
		"state", domain.StateApplying,
	)
	start := s.now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, op := range d.Up {
			if err := s.adapter.Apply(ctx, tx, op); err != nil {
				return &domain.DescriptorError{ID: d.ID, Direction: domain.DirectionUp, OperationIndex: i, Err: err}
			}
		}
		if err := s.ledger.Record(ctx, tx, d.ID, s.now()); err != nil {
			return &domain.DescriptorError{ID: d.ID, Direction: domain.DirectionUp, OperationIndex: -1, Err: err}
		}
		return nil
	})
	res := domain.DescriptorResult{ID: d.ID, State: domain.StateApplied, Duration: s.now().Sub(start)}
	if err != nil {
		res.State = domain.StateFailed
		res.Err = asDescriptorError(d.ID, domain.DirectionUp, err)
		recordSpanError(span, res.Err)
		slog.ErrorContext(ctx, "failed to apply descriptor",
			"operation", "up",
			"run_id", runID,
			"descriptor_id", d.ID,
			"state", res.State,
			"error", res.Err,
		)
		return res
	}

	slog.InfoContext(ctx, "descriptor applied",
		"operation", "up",
		"run_id", runID,
		"descriptor_id", d.ID,
		"state", res.State,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res
}

// DownTo は target（"zero" または空の場合は全て）より大きい適用済みディスクリプタを降順に取り消す。
// 取り消し不能なディスクリプタに達した場合は IrreversibleMigrationError で停止し、
// それ以下のディスクリプタは適用済みのまま残る。
func (s *MigrationService) DownTo(ctx context.Context, target string) (*domain.Report, error) {
	report := &domain.Report{
		RunID:     uuid.NewString(),
		Direction: domain.DirectionDown,
		Target:    target,
	}
	ctx, span := tracer.Start(ctx, "migration.down", trace.WithAttributes(
		attribute.String("migration.run_id", report.RunID),
		attribute.String("migration.target", target),
	))
	defer span.End()

	release, err := s.acquire(ctx)
	if err != nil {
		recordSpanError(span, err)
		return report, err
	}
	defer release()

	p, err := s.load(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load migration plan",
			"operation", "down",
			"run_id", report.RunID,
			"error", err,
		)
		recordSpanError(span, err)
		return report, err
	}
	resolved, err := p.resolveDownTarget(target)
	if err != nil {
		recordSpanError(span, err)
		return report, err
	}

	var revert []string
	for _, e := range slices.Backward(p.ledger) {
		if e.DescriptorID > resolved {
			revert = append(revert, e.DescriptorID)
		}
	}
	report.Planned = revert
	if len(revert) == 0 {
		slog.InfoContext(ctx, "nothing to revert",
			"operation", "down",
			"run_id", report.RunID,
		)
		return report, nil
	}
	s.warnNonTransactional(ctx, report.RunID)

	for _, id := range revert {
		d, ok := p.byID[id]
		if !ok {
			err := &domain.DescriptorError{
				ID: id, Direction: domain.DirectionDown, OperationIndex: -1,
				Err: fmt.Errorf("%w: %s", domain.ErrUnknownDescriptor, id),
			}
			report.Results = append(report.Results, domain.DescriptorResult{ID: id, State: domain.StateFailed, Err: err})
			recordSpanError(span, err)
			return report, err
		}
		if d.Irreversible {
			err := &domain.DescriptorError{
				ID: id, Direction: domain.DirectionDown, OperationIndex: -1,
				Err: &domain.IrreversibleMigrationError{ID: id},
			}
			report.Results = append(report.Results, domain.DescriptorResult{ID: id, State: domain.StateApplied, Err: err})
			slog.WarnContext(ctx, "stopping at irreversible descriptor",
				"operation", "down",
				"run_id", report.RunID,
				"descriptor_id", id,
			)
			recordSpanError(span, err)
			return report, err
		}

		res := s.revert(ctx, report.RunID, d)
		report.Results = append(report.Results, res)
		if res.Err != nil {
			recordSpanError(span, res.Err)
			return report, res.Err
		}
	}

	slog.InfoContext(ctx, "migrations reverted",
		"operation", "down",
		"run_id", report.RunID,
		"count", len(report.Results),
	)
	return report, nil
}

// revert は1ディスクリプタのDown操作と台帳削除を同一トランザクションで実行する。
func (s *MigrationService) revert(ctx context.Context, runID string, d domain.Descriptor) domain.DescriptorResult {
	ctx, span := tracer.Start(ctx, "migration.revert", trace.WithAttributes(
		attribute.String("migration.descriptor_id", d.ID),
	))
	defer span.End()

	slog.InfoContext(ctx, "reverting descriptor",
		"operation", "down",
		"run_id", runID,
		"descriptor_id", d.ID,
		"state", domain.StateReverting,
	)
	start := s.now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, op := range d.Down {
			if err := s.adapter.Apply(ctx, tx, op); err != nil {
				return &domain.DescriptorError{ID: d.ID, Direction: domain.DirectionDown, OperationIndex: i, Err: err}
			}
		}
		if err := s.ledger.Erase(ctx, tx, d.ID); err != nil {
			return &domain.DescriptorError{ID: d.ID, Direction: domain.DirectionDown, OperationIndex: -1, Err: err}
		}
		return nil
	})
	res := domain.DescriptorResult{ID: d.ID, State: domain.StatePending, Duration: s.now().Sub(start)}
	if err != nil {
		res.State = domain.StateApplied
		res.Err = asDescriptorError(d.ID, domain.DirectionDown, err)
		recordSpanError(span, res.Err)
		slog.ErrorContext(ctx, "failed to revert descriptor",
			"operation", "down",
			"run_id", runID,
			"descriptor_id", d.ID,
			"error", res.Err,
		)
		return res
	}

	slog.InfoContext(ctx, "descriptor reverted",
		"operation", "down",
		"run_id", runID,
		"descriptor_id", d.ID,
		"state", res.State,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res
}

// Status はレジストリと台帳を突き合わせた状態をID昇順で返す。データベースは変更しない。
func (s *MigrationService) Status(ctx context.Context) ([]domain.StatusEntry, error) {
	p, err := s.load(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load migration status",
			"operation", "status",
			"error", err,
		)
		return nil, err
	}

	appliedAt := make(map[string]time.Time, len(p.ledger))
	for _, e := range p.ledger {
		appliedAt[e.DescriptorID] = e.AppliedAt
	}

	entries := make([]domain.StatusEntry, 0, len(p.descriptors))
	for _, d := range p.descriptors {
		entry := domain.StatusEntry{
			ID:           d.ID,
			Name:         d.Name,
			Irreversible: d.Irreversible,
		}
		if at, ok := appliedAt[d.ID]; ok {
			entry.Applied = true
			entry.AppliedAt = &at
		}
		entries = append(entries, entry)
	}
	// レジストリにない台帳行
	for _, e := range p.ledger {
		if _, ok := p.byID[e.DescriptorID]; ok {
			continue
		}
		at := e.AppliedAt
		entries = append(entries, domain.StatusEntry{
			ID:        e.DescriptorID,
			Applied:   true,
			AppliedAt: &at,
			Missing:   true,
		})
	}
	slices.SortFunc(entries, func(a, b domain.StatusEntry) int {
		return strings.Compare(a.ID, b.ID)
	})
	return entries, nil
}

func (s *MigrationService) acquire(ctx context.Context) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	release, err := s.locker.Acquire(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrRunnerLocked) {
			slog.ErrorContext(ctx, "failed to acquire runner lock",
				"operation", "acquire_lock",
				"error", err,
			)
		}
		return nil, err
	}
	return release, nil
}

func (s *MigrationService) warnNonTransactional(ctx context.Context, runID string) {
	if s.adapter.TransactionalDDL() {
		return
	}
	slog.WarnContext(ctx, "dialect commits DDL implicitly; a failed descriptor may leave partial changes",
		"run_id", runID,
		"dialect", s.adapter.DialectName(),
	)
}

// asDescriptorError はトランザクションが返したエラーを DescriptorError に揃える。
func asDescriptorError(id string, dir domain.Direction, err error) error {
	var de *domain.DescriptorError
	if errors.As(err, &de) {
		return err
	}
	return &domain.DescriptorError{ID: id, Direction: dir, OperationIndex: -1, Err: err}
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

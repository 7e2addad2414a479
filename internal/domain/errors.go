package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMigrationFailed はマイグレーション実行時のエラー。
	ErrMigrationFailed = errors.New("migration failed")

	// ErrInvalidMigrationFile はマイグレーションファイルのフォーマットが不正な場合のエラー。
	ErrInvalidMigrationFile = errors.New("invalid migration file")

	// ErrUnknownTarget は指定されたターゲットIDがレジストリに存在しない場合のエラー。
	ErrUnknownTarget = errors.New("unknown target descriptor")

	// ErrUnknownDescriptor は台帳に記録されたIDに対応するディスクリプタが存在しない場合のエラー。
	ErrUnknownDescriptor = errors.New("applied descriptor not found in registry")

	// ErrUnsupportedOperation はダイアレクトが操作をサポートしない場合のエラー。
	ErrUnsupportedOperation = errors.New("operation not supported by dialect")

	// ErrRunnerLocked は別のランナーが実行中の場合のエラー。
	ErrRunnerLocked = errors.New("another runner already in progress")

	// ErrNotReversible は操作の逆操作を導出できない場合のエラー。
	ErrNotReversible = errors.New("operation is not reversible")
)

// ConfigError は接続設定が不正な場合のエラー。マイグレーション開始前に返される。
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// DuplicateIDError は同じIDのディスクリプタが複数登録されている場合のエラー。
type DuplicateIDError struct {
	ID      string
	Sources []string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("duplicate descriptor id %q (sources: %v)", e.ID, e.Sources)
}

// MalformedDescriptorError はディスクリプタの構成が不正な場合のエラー。
type MalformedDescriptorError struct {
	ID     string
	Reason string
}

func (e *MalformedDescriptorError) Error() string {
	return fmt.Sprintf("malformed descriptor %q: %s", e.ID, e.Reason)
}

// DuplicateApplyError は台帳に既に記録済みのIDを再度記録しようとした場合のエラー。
// 並行して別のランナーが動いていることを示す。
type DuplicateApplyError struct {
	ID string
}

func (e *DuplicateApplyError) Error() string {
	return fmt.Sprintf("descriptor %q already recorded in ledger: another runner may be in progress", e.ID)
}

// AdapterError はデータベースが返したエラーを操作とテーブル名で包む。
type AdapterError struct {
	Operation OperationKind
	Table     string
	Cause     error
}

func (e *AdapterError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("%s: %v", e.Operation, e.Cause)
	}
	return fmt.Sprintf("%s on %q: %v", e.Operation, e.Table, e.Cause)
}

func (e *AdapterError) Unwrap() error {
	return e.Cause
}

// IrreversibleMigrationError は取り消し不能なディスクリプタをロールバックしようとした場合のエラー。
type IrreversibleMigrationError struct {
	ID string
}

func (e *IrreversibleMigrationError) Error() string {
	return fmt.Sprintf("descriptor %q is irreversible", e.ID)
}

// DescriptorError はディスクリプタの実行失敗を、対象IDと失敗した操作の位置とともに表す。
// OperationIndex は操作が原因でない場合 -1。
type DescriptorError struct {
	ID             string
	Direction      Direction
	OperationIndex int
	Err            error
}

func (e *DescriptorError) Error() string {
	if e.OperationIndex < 0 {
		return fmt.Sprintf("%s %s: %v", e.Direction, e.ID, e.Err)
	}
	return fmt.Sprintf("%s %s: operation #%d: %v", e.Direction, e.ID, e.OperationIndex+1, e.Err)
}

func (e *DescriptorError) Unwrap() []error {
	return []error{ErrMigrationFailed, e.Err}
}

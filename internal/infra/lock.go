package infra

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"sync"

	"gorm.io/gorm"

	"schema-migrator/internal/domain"
)

const runnerLockName = "schema_migrator_runner"

// SessionLock はデータベースのセッションロック（MySQLの GET_LOCK、PostgreSQLのアドバイザリロック）で
// ランナーの同時実行を防ぐ。ロックはセッションに紐づくため専用の接続を確保して保持する。
type SessionLock struct {
	db         *gorm.DB
	acquireSQL string
	releaseSQL string
	key        any
}

// NewMySQLLock はMySQL用のロックを生成する。待たずに失敗する。
func NewMySQLLock(db *gorm.DB) *SessionLock {
	return &SessionLock{
		db:         db,
		acquireSQL: "SELECT GET_LOCK(?, 0)",
		releaseSQL: "SELECT RELEASE_LOCK(?)",
		key:        runnerLockName,
	}
}

// NewPostgresLock はPostgreSQL用のロックを生成する。
func NewPostgresLock(db *gorm.DB) *SessionLock {
	return &SessionLock{
		db:         db,
		acquireSQL: "SELECT pg_try_advisory_lock($1)",
		releaseSQL: "SELECT pg_advisory_unlock($1)",
		key:        hashLockKey(runnerLockName),
	}
}

// Acquire はロックを取得する。他のランナーが保持している場合は ErrRunnerLocked を返す。
func (l *SessionLock) Acquire(ctx context.Context) (func(), error) {
	sqlDB, err := l.db.DB()
	if err != nil {
		return nil, err
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("reserving lock connection: %w", err)
	}

	var got sql.NullBool
	if err := conn.QueryRowContext(ctx, l.acquireSQL, l.key).Scan(&got); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("acquiring runner lock: %w", err)
	}
	if !got.Valid || !got.Bool {
		_ = conn.Close()
		return nil, domain.ErrRunnerLocked
	}

	release := func() {
		_, _ = conn.ExecContext(context.Background(), l.releaseSQL, l.key)
		_ = conn.Close()
	}
	return release, nil
}

// MutexLock はプロセス内のミューテックスによるロック。SQLiteは単一ライターのためこれで足りる。
type MutexLock struct {
	mu sync.Mutex
}

// Acquire はロックを取得する。既に保持されている場合は ErrRunnerLocked を返す。
func (l *MutexLock) Acquire(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !l.mu.TryLock() {
		return nil, domain.ErrRunnerLocked
	}
	return l.mu.Unlock, nil
}

// Locker はランナーの排他ロック。
type Locker interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// NewLocker はドライバに応じたロックを返す。
func NewLocker(driver string, db *gorm.DB) (Locker, error) {
	switch driver {
	case "mysql":
		return NewMySQLLock(db), nil
	case "postgres":
		return NewPostgresLock(db), nil
	case "sqlite":
		return &MutexLock{}, nil
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
}

// hashLockKey はアドバイザリロック用に文字列から安定したint64を得る。
func hashLockKey(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64() & 0x7FFFFFFFFFFFFFFF)
}

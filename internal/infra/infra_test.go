package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"

	"schema-migrator/config"
	"schema-migrator/internal/domain"
)

func TestMySQLDSN(t *testing.T) {
	dsn := MySQLDSN(config.DatabaseConfig{
		Driver:   "mysql",
		Host:     "192.168.0.110",
		Port:     3306,
		User:     "root",
		Password: "p@ss:word",
		Database: "appart_14",
		SSLMode:  "disable",
	})

	for _, want := range []string{
		"root:p@ss:word@tcp(192.168.0.110:3306)/appart_14",
		"parseTime=true",
		"multiStatements=true",
		"tls=false",
	} {
		if !strings.Contains(dsn, want) {
			t.Errorf("expected %q in %s", want, dsn)
		}
	}
}

func TestPostgresDSN(t *testing.T) {
	dsn := PostgresDSN(config.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "app",
		Password: "it's secret",
		Database: "appart_14",
		SSLMode:  "require",
	})

	want := `host=localhost port=5432 user=app password='it\'s secret' dbname=appart_14 sslmode=require`
	if dsn != want {
		t.Errorf("PostgresDSN() =\n%s\nwant\n%s", dsn, want)
	}
}

func TestSQLiteDSN(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{path: "local.db", want: "local.db?_foreign_keys=1&_busy_timeout=5000"},
		{path: "file:local.db?cache=shared", want: "file:local.db?cache=shared&_foreign_keys=1&_busy_timeout=5000"},
	}
	for _, tt := range tests {
		if got := SQLiteDSN(config.DatabaseConfig{Database: tt.path}); got != tt.want {
			t.Errorf("SQLiteDSN(%s) = %s, want %s", tt.path, got, tt.want)
		}
	}
}

func TestDialector_Unsupported(t *testing.T) {
	if _, err := Dialector(config.DatabaseConfig{Driver: "oracle"}); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestNewDB_SQLite(t *testing.T) {
	cfg := &config.Config{Database: config.DatabaseConfig{
		Driver:   "sqlite",
		Database: filepath.Join(t.TempDir(), "infra.db"),
	}}

	db, err := NewDB(cfg)
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	defer sqlDB.Close()

	if got := sqlDB.Stats().MaxOpenConnections; got != 1 {
		t.Errorf("expected single connection for sqlite, got %d", got)
	}
	var fk int
	if err := db.Raw("PRAGMA foreign_keys").Scan(&fk).Error; err != nil {
		t.Fatalf("PRAGMA failed: %v", err)
	}
	if fk != 1 {
		t.Error("expected foreign keys to be enabled")
	}
}

func TestMutexLock(t *testing.T) {
	ctx := context.Background()
	lock := &MutexLock{}

	release, err := lock.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if _, err := lock.Acquire(ctx); !errors.Is(err, domain.ErrRunnerLocked) {
		t.Errorf("expected ErrRunnerLocked, got %v", err)
	}

	release()
	release2, err := lock.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire after release failed: %v", err)
	}
	release2()
}

func TestMutexLock_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := (&MutexLock{}).Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNewLocker(t *testing.T) {
	tests := []struct {
		driver string
		want   string
	}{
		{driver: "mysql", want: "SELECT GET_LOCK(?, 0)"},
		{driver: "postgres", want: "SELECT pg_try_advisory_lock($1)"},
	}
	for _, tt := range tests {
		l, err := NewLocker(tt.driver, nil)
		if err != nil {
			t.Fatalf("NewLocker(%s) failed: %v", tt.driver, err)
		}
		sl, ok := l.(*SessionLock)
		if !ok {
			t.Fatalf("expected *SessionLock for %s, got %T", tt.driver, l)
		}
		if sl.acquireSQL != tt.want {
			t.Errorf("expected %s, got %s", tt.want, sl.acquireSQL)
		}
	}

	if l, err := NewLocker("sqlite", nil); err != nil {
		t.Errorf("NewLocker(sqlite) failed: %v", err)
	} else if _, ok := l.(*MutexLock); !ok {
		t.Errorf("expected *MutexLock, got %T", l)
	}
	if _, err := NewLocker("oracle", nil); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestHashLockKey(t *testing.T) {
	a := hashLockKey("schema_migrator_runner")
	if a != hashLockKey("schema_migrator_runner") {
		t.Error("expected stable hash")
	}
	if a < 0 {
		t.Error("expected non-negative key")
	}
	if a == hashLockKey("other") {
		t.Error("expected different keys for different names")
	}
}

// fakeDecrypter はテスト用の復号器。
type fakeDecrypter struct {
	got []byte
	err error
}

func (f *fakeDecrypter) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	f.got = ciphertext
	if f.err != nil {
		return nil, f.err
	}
	return []byte("decrypted-password"), nil
}

func TestResolvePassword(t *testing.T) {
	ctx := context.Background()

	db := &config.DatabaseConfig{PasswordCiphertext: "Y2lwaGVy"}
	d := &fakeDecrypter{}
	if err := ResolvePassword(ctx, db, d); err != nil {
		t.Fatalf("ResolvePassword failed: %v", err)
	}
	if string(d.got) != "cipher" {
		t.Errorf("expected decoded ciphertext, got %q", d.got)
	}
	if db.Password != "decrypted-password" {
		t.Errorf("expected password to be set, got %q", db.Password)
	}
}

func TestResolvePassword_NoCiphertext(t *testing.T) {
	db := &config.DatabaseConfig{Password: "plain"}
	d := &fakeDecrypter{}
	if err := ResolvePassword(context.Background(), db, d); err != nil {
		t.Fatalf("ResolvePassword failed: %v", err)
	}
	if db.Password != "plain" || d.got != nil {
		t.Error("expected password to be left untouched")
	}
}

func TestResolvePassword_Errors(t *testing.T) {
	if err := ResolvePassword(context.Background(), &config.DatabaseConfig{PasswordCiphertext: "%%%"}, &fakeDecrypter{}); err == nil {
		t.Error("expected base64 error")
	}
	kmsErr := errors.New("permission denied")
	err := ResolvePassword(context.Background(), &config.DatabaseConfig{PasswordCiphertext: "Y2lwaGVy"}, &fakeDecrypter{err: kmsErr})
	if !errors.Is(err, kmsErr) {
		t.Errorf("expected KMS error, got %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"DEBUG": slog.LevelDebug,
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"ERROR": slog.LevelError,
		"INFO":  slog.LevelInfo,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestTraceHandler(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{OtelEnabled: true, GoogleCloudProject: "my-project"}
	logger := slog.New(NewTraceHandler(slog.NewJSONHandler(&buf, &slog.HandlerOptions{ReplaceAttr: cloudLoggingAttr}), cfg))

	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	logger.WarnContext(ctx, "descriptor applied", "descriptor_id", "001_a")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to decode log: %v", err)
	}
	if entry["trace"] != traceID.String() || entry["spanId"] != spanID.String() {
		t.Errorf("expected trace fields, got %v", entry)
	}
	if entry["logging.googleapis.com/trace"] != "projects/my-project/traces/"+traceID.String() {
		t.Errorf("unexpected cloud logging trace: %v", entry["logging.googleapis.com/trace"])
	}
	if entry["severity"] != "WARNING" || entry["message"] != "descriptor applied" {
		t.Errorf("unexpected severity/message: %v", entry)
	}
}

func TestTraceHandler_Disabled(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewTraceHandler(slog.NewJSONHandler(&buf, nil), &config.Config{}))

	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))
	logger.InfoContext(ctx, "hello")

	if strings.Contains(buf.String(), "spanId") {
		t.Errorf("expected no trace fields when tracing is disabled: %s", buf.String())
	}
}

func TestInitTracer_Disabled(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), &config.Config{}, "test")
	if err != nil {
		t.Fatalf("InitTracer failed: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown failed: %v", err)
	}
}

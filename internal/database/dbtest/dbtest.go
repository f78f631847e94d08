// Package dbtest provides a schema-initialised sqlite Executor for tests.
package dbtest

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/EmanuelC1601/back-end/internal/config"
	"github.com/EmanuelC1601/back-end/internal/database"
)

// New opens a fresh sqlite database in t's temp dir, creates the tables
// and returns an Executor closed on cleanup.  Each test gets its own file,
// since every connection to ":memory:" would see a different database.
func New(t testing.TB) *database.Executor {
	t.Helper()
	cfg := config.Config{
		DBDriver:          "sqlite",
		DBPath:            filepath.Join(t.TempDir(), "test.db"),
		DBMaxOpenConns:    5,
		DBConnectTimeout:  5 * time.Second,
		DBConnMaxLifetime: time.Hour,
	}
	ctx := context.Background()
	db, err := database.Open(ctx, cfg)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	ex := database.NewExecutor(db, nil, database.Options{
		MaxConns:   cfg.DBMaxOpenConns,
		MaxWaiters: 50,
		BaseDelay:  time.Millisecond,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	t.Cleanup(func() { _ = ex.Close() })
	if err := database.EnsureSchema(ctx, ex, "sqlite"); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return ex
}

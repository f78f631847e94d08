package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/EmanuelC1601/back-end/internal/config"
)

// Open connects to the configured store (mysql or sqlite) and verifies the
// connection within the connect timeout.
func Open(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	driver, dsn, err := dataSource(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	// Pool settings; the Executor's slot semaphore uses the same bound
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxOpenConns)
	db.SetConnMaxIdleTime(cfg.DBConnMaxIdle)
	db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)

	// Ping with timeout
	ctx, cancel := context.WithTimeout(ctx, cfg.DBConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

// NewOpener returns an Opener that builds fresh pools from cfg.
func NewOpener(cfg config.Config) Opener {
	return func(ctx context.Context) (Pool, error) {
		return Open(ctx, cfg)
	}
}

func dataSource(cfg config.Config) (driver, dsn string, err error) {
	switch cfg.DBDriver {
	case "mysql":
		return "mysql", cfg.DSN(), nil
	case "sqlite":
		if dir := filepath.Dir(cfg.DBPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return "", "", fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		return "sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", cfg.DBPath), nil
	default:
		return "", "", fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
}

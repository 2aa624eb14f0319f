// Package db opens the database and brings its schema up to date.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/diewo77/go-tasks/internal/config"
	"github.com/diewo77/go-tasks/internal/logger"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	connectAttempts = 5
	connectBackoff  = 2 * time.Second
)

// Connect opens the configured database. Postgres connections are retried to
// give the server time to start; sqlite is opened once.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*gorm.DB, error) {
	level := gormlogger.Warn
	if cfg.Debug {
		level = gormlogger.Info
	}
	gcfg := &gorm.Config{Logger: gormlogger.Default.LogMode(level), TranslateError: true}

	switch cfg.Driver {
	case "sqlite":
		conn, err := gorm.Open(sqlite.Open(cfg.DSN()), gcfg)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %q: %w", cfg.Path, err)
		}
		return conn, nil
	case "postgres":
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	var (
		conn *gorm.DB
		err  error
	)
	for i := 1; i <= connectAttempts; i++ {
		conn, err = gorm.Open(postgres.Open(cfg.DSN()), gcfg)
		if err == nil {
			err = conn.WithContext(ctx).Exec("SELECT 1").Error
		}
		if err == nil {
			break
		}
		logger.Warn("database connection failed", "attempt", i, "of", connectAttempts, "dsn", MaskDSN(cfg.DSN()), "error", err)
		if i == connectAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(connectBackoff):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect database after %d attempts: %w", connectAttempts, err)
	}
	logger.Info("database connected", "dsn", MaskDSN(cfg.DSN()))
	return conn, nil
}

// Setup prepares the schema. With sqlMigrations set on postgres the embedded
// SQL migrations run through golang-migrate; otherwise AutoMigrate is used.
func Setup(conn *gorm.DB, cfg config.DatabaseConfig, sqlMigrations bool) error {
	if sqlMigrations && cfg.Driver == "postgres" {
		if err := RunSQLMigrations(cfg.URL()); err != nil {
			return fmt.Errorf("sql migrations: %w", err)
		}
	} else if err := Migrate(conn); err != nil {
		return err
	}
	for _, table := range []string{"users", "auth_tokens", "tasks"} {
		if !conn.Migrator().HasTable(table) {
			return fmt.Errorf("missing table after migration: %s", table)
		}
	}
	return nil
}

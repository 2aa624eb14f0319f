package db

import (
	"embed"
	"errors"
	"fmt"

	"github.com/diewo77/go-tasks/internal/models"
	migrate "github.com/golang-migrate/migrate/v4"
	// Registers the postgres database driver for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// ownerNameTables hold per-owner names that must be unique among live rows.
var ownerNameTables = []string{"categories", "priorities"}

// Migrate runs AutoMigrate for all models and adds the partial unique
// indexes struct tags cannot express.
func Migrate(conn *gorm.DB) error {
	for _, m := range models.All() {
		if err := conn.AutoMigrate(m); err != nil {
			return fmt.Errorf("automigrate %T: %w", m, err)
		}
	}
	for _, table := range ownerNameTables {
		stmt := fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_owner_name ON %s (user_id, LOWER(name)) WHERE deleted_at IS NULL", table, table)
		if err := conn.Exec(stmt).Error; err != nil {
			return fmt.Errorf("index %s names: %w", table, err)
		}
	}
	return nil
}

// RunSQLMigrations applies the embedded SQL migrations to the postgres
// database at url.
func RunSQLMigrations(url string) error {
	m, err := newMigrator(url)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// RollbackSQLMigrations reverts the last applied migration.
func RollbackSQLMigrations(url string) error {
	m, err := newMigrator(url)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func newMigrator(url string) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return nil, fmt.Errorf("init migrate: %w", err)
	}
	return m, nil
}

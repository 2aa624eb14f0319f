package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/diewo77/go-tasks/auth"
	"github.com/diewo77/go-tasks/internal/db"
	"github.com/diewo77/go-tasks/internal/models"
	"github.com/diewo77/go-tasks/internal/policy"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent), TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn))
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return conn
}

func seedUser(t *testing.T, conn *gorm.DB, username string, admin bool) *models.User {
	t.Helper()
	hash, err := hashPassword("secret-" + username)
	require.NoError(t, err)
	u := models.User{Username: username, Password: hash, IsActive: true, IsAdmin: admin}
	require.NoError(t, conn.Create(&u).Error)
	return &u
}

type fixture struct {
	db         *gorm.DB
	tasks      *TaskService
	categories *CategoryService
	priorities *PriorityService
	accounts   *AccountService
	issuer     *auth.Issuer
	alice      *models.User
	bob        *models.User
	admin      *models.User
}

func newFixture(t *testing.T) *fixture {
	conn := setupTestDB(t)
	g := policy.NewGate()
	issuer := auth.NewIssuer("test-secret", time.Hour)
	return &fixture{
		db:         conn,
		tasks:      NewTaskService(conn, g),
		categories: NewCategoryService(conn, g),
		priorities: NewPriorityService(conn, g),
		accounts:   NewAccountService(conn, g, issuer),
		issuer:     issuer,
		alice:      seedUser(t, conn, "alice", false),
		bob:        seedUser(t, conn, "bob", false),
		admin:      seedUser(t, conn, "root", true),
	}
}

func ptr[T any](v T) *T { return &v }

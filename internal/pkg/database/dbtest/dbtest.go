// Package dbtest opens throwaway SQLite databases for repository tests.
package dbtest

import (
	"path/filepath"
	"testing"

	"github.com/lk2023060901/blog-backend/internal/pkg/database"
	"github.com/lk2023060901/blog-backend/internal/pkg/logger"
	"github.com/stretchr/testify/require"
)

// New opens a SQLite database in t.TempDir and migrates models
func New(t testing.TB, models ...any) *database.DB {
	t.Helper()

	cfg := database.DefaultConfig()
	cfg.Driver = database.DriverSQLite
	cfg.Path = filepath.Join(t.TempDir(), "test.db")
	cfg.LogLevel = "silent"
	cfg.AutoMigrate = true

	db, err := database.New(cfg, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	if len(models) > 0 {
		require.NoError(t, db.AutoMigrate(models...))
	}
	return db
}

// Package databasetest opens throwaway SQLite databases migrated to the
// current schema so repositories can be tested against real SQL.
package databasetest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap/zaptest"

	"github.com/Additional-Code/tableside/internal/config"
	"github.com/Additional-Code/tableside/internal/database"
	"github.com/Additional-Code/tableside/internal/migration"
)

// Open creates a SQLite file under t.TempDir, applies every migration and
// closes the pools when the test ends.
func Open(t testing.TB) *database.Connections {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "tableside.db")
	cfg := config.Config{Database: config.Database{
		Driver:    "sqlite",
		WriterDSN: dsn,
		ReaderDSN: dsn,
	}}
	logger := zaptest.NewLogger(t)

	lc := fxtest.NewLifecycle(t)
	conns, err := database.New(lc, cfg, logger)
	require.NoError(t, err)
	lc.RequireStart()
	t.Cleanup(lc.RequireStop)

	m, err := migration.New(cfg, conns, logger)
	require.NoError(t, err)
	require.NoError(t, m.Up(context.Background()))

	return conns
}

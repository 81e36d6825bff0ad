package migration

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap/zaptest"

	"github.com/Additional-Code/tableside/db/migrations"
	"github.com/Additional-Code/tableside/internal/config"
	"github.com/Additional-Code/tableside/internal/database"
)

func TestGooseDialect(t *testing.T) {
	for driver, want := range map[string]string{
		"postgres": "postgres",
		"pg":       "postgres",
		"mysql":    "mysql",
		"sqlite":   "sqlite3",
	} {
		got, err := gooseDialect(driver)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := gooseDialect("oracle")
	assert.Error(t, err)
}

func TestIsNoMigrationErr(t *testing.T) {
	assert.False(t, isNoMigrationErr(nil))
	assert.True(t, isNoMigrationErr(goose.ErrNoNextVersion))
	assert.True(t, isNoMigrationErr(errors.New("no migrations found")))
	assert.False(t, isNoMigrationErr(errors.New("syntax error")))
}

func TestEmbeddedMigrationsPresentPerDialect(t *testing.T) {
	for _, dialect := range []string{"postgres", "mysql", "sqlite3"} {
		files, err := fs.Glob(migrations.FS, migrations.Dir(dialect)+"/*.sql")
		require.NoError(t, err)
		assert.Len(t, files, 5, dialect)
	}
}

func TestUpAndDownOnSQLite(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "migrate.db")
	cfg := config.Config{Database: config.Database{Driver: "sqlite", WriterDSN: dsn, ReaderDSN: dsn}}
	logger := zaptest.NewLogger(t)

	lc := fxtest.NewLifecycle(t)
	conns, err := database.New(lc, cfg, logger)
	require.NoError(t, err)
	lc.RequireStart()
	defer lc.RequireStop()

	m, err := New(cfg, conns, logger)
	require.NoError(t, err)
	assert.Equal(t, "sql/sqlite", m.dir)

	ctx := context.Background()
	require.NoError(t, m.Up(ctx))
	version, err := m.Version(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 5, version)

	// A second run finds nothing pending.
	require.NoError(t, m.Up(ctx))

	var tables int
	require.NoError(t, conns.Writer.NewRaw(
		"SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name IN ('orders', 'settlements', 'reservations')",
	).Scan(ctx, &tables))
	assert.Equal(t, 3, tables)

	require.NoError(t, m.Down(ctx, 0, true))
	version, err = m.Version(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, version)
}

package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap/zapcore"

	"github.com/Additional-Code/tableside/internal/config"
)

func TestNewHonoursLevel(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	cfg := config.Config{Observability: config.Observability{
		ServiceName: "tableside",
		Environment: "test",
		LogLevel:    "warn",
		LogEncoding: "json",
	}}

	logger, err := New(lc, cfg)
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	lc.RequireStart().RequireStop()
}

func TestNewFallsBackToInfo(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	cfg := config.Config{Observability: config.Observability{LogLevel: "loud", LogEncoding: "console"}}

	logger, err := New(lc, cfg)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}

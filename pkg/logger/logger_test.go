package logger

import (
	"testing"

	"finman/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestInitFormats(t *testing.T) {
	t.Cleanup(func() { _ = SetLevel("info") })

	require.NoError(t, Init(config.LoggerConfig{Level: "debug", Format: "json"}))
	assert.True(t, Get().Core().Enabled(zapcore.DebugLevel))

	require.NoError(t, Init(config.LoggerConfig{Level: "warn", Format: "console"}))
	assert.False(t, Get().Core().Enabled(zapcore.InfoLevel))
	assert.True(t, Get().Core().Enabled(zapcore.WarnLevel))

	err := Init(config.LoggerConfig{Level: "info", Format: "xml"})
	assert.ErrorContains(t, err, "unknown log format")
}

func TestUnknownLevelFallsBackToInfo(t *testing.T) {
	require.NoError(t, Init(config.LoggerConfig{Level: "loud"}))
	assert.False(t, Get().Core().Enabled(zapcore.DebugLevel))
	assert.True(t, Get().Core().Enabled(zapcore.InfoLevel))
}

func TestSetLevelAffectsComponents(t *testing.T) {
	t.Cleanup(func() { _ = SetLevel("info") })
	require.NoError(t, Init(config.LoggerConfig{Level: "info"}))

	l := Component("dialog")
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))

	require.NoError(t, SetLevel("debug"))
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	assert.Error(t, SetLevel("chatty"))
}

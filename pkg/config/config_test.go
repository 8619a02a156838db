package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"STORAGE_DRIVER", "DIALOG_HIGH_CONFIDENCE", "DIALOG_LOW_CONFIDENCE",
		"DIALOG_MAX_TURNS", "DIALOG_SESSION_IDLE_TIMEOUT", "TELEGRAM_ALLOWED_USERS",
		"LOG_FORMAT", "DB_MAX_CONNS", "DB_MIN_CONNS",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, 0.85, cfg.Dialog.HighConfidenceThreshold)
	assert.Equal(t, 0.3, cfg.Dialog.LowConfidenceThreshold)
	assert.Equal(t, 3, cfg.Dialog.MaxClarificationTurns)
	assert.Equal(t, 30*time.Minute, cfg.Dialog.SessionIdleTimeout)
	assert.Empty(t, cfg.Telegram.AllowedUsers)
	assert.Equal(t, "json", cfg.Logger.Format)
	assert.Equal(t, int32(10), cfg.Database.MaxConns)
	assert.Equal(t, int32(0), cfg.Database.MinConns)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "SQLite")
	t.Setenv("DIALOG_HIGH_CONFIDENCE", "0.9")
	t.Setenv("DIALOG_MAX_TURNS", "5")
	t.Setenv("DIALOG_COMMIT_TIMEOUT", "3s")
	t.Setenv("TELEGRAM_ALLOWED_USERS", "12, 34,,oops")
	t.Setenv("JWT_EXPIRATION_HOURS", "2")
	t.Setenv("LOG_FORMAT", "Console")
	t.Setenv("DB_MAX_CONNS", "25")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, 0.9, cfg.Dialog.HighConfidenceThreshold)
	assert.Equal(t, 5, cfg.Dialog.MaxClarificationTurns)
	assert.Equal(t, 3*time.Second, cfg.Dialog.CommitTimeout)
	assert.Equal(t, []int64{12, 34}, cfg.Telegram.AllowedUsers)
	assert.Equal(t, 2*time.Hour, cfg.JWT.Expiration)
	assert.Equal(t, "console", cfg.Logger.Format)
	assert.Equal(t, int32(25), cfg.Database.MaxConns)
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("DIALOG_LOW_CONFIDENCE", "low")
	t.Setenv("DIALOG_EXTRACTION_TIMEOUT", "-5s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 0.3, cfg.Dialog.LowConfidenceThreshold)
	assert.Equal(t, 30*time.Second, cfg.Dialog.ExtractionTimeout)
}

func TestLoadRejectsInvalidDialogPolicy(t *testing.T) {
	tests := map[string]map[string]string{
		"zero turns":      {"DIALOG_MAX_TURNS": "0"},
		"negative turns":  {"DIALOG_MAX_TURNS": "-2"},
		"low above high":  {"DIALOG_LOW_CONFIDENCE": "0.9", "DIALOG_HIGH_CONFIDENCE": "0.5"},
		"low equals high": {"DIALOG_LOW_CONFIDENCE": "0.6", "DIALOG_HIGH_CONFIDENCE": "0.6"},
		"high above one":  {"DIALOG_HIGH_CONFIDENCE": "1.5"},
		"negative low":    {"DIALOG_LOW_CONFIDENCE": "-0.1"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.ErrorIs(t, err, ErrInvalidDialogConfig)
		})
	}
}

package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("console output", func(t *testing.T) {
		logger, err := New(Config{Level: "info", Console: true})
		require.NoError(t, err)
		require.NotNil(t, logger)
		assert.Equal(t, zerolog.InfoLevel, logger.GetZerolog().GetLevel())
		assert.NoError(t, logger.Close())
	})

	t.Run("file output", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "logs", "actions.log")

		logger, err := New(Config{Level: "debug", File: logFile})
		require.NoError(t, err)

		z := logger.GetZerolog()
		z.Info().Str("action_name", "utter_greet").Msg("dispatched")
		require.NoError(t, logger.Close())

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(data), "utter_greet")
		assert.Contains(t, string(data), `"level":"info"`)
	})

	t.Run("redaction enabled", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "actions.log")

		logger, err := New(Config{Level: "info", File: logFile, Redaction: true})
		require.NoError(t, err)

		z := logger.GetZerolog()
		z.Info().Str("ssl_password", "hunter2").Msg("starting")
		require.NoError(t, logger.Close())

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "hunter2")
		assert.Contains(t, string(data), "[REDACTED]")
	})

	t.Run("rotating file output", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "actions.log")

		logger, err := New(Config{Level: "info", File: logFile, MaxSize: 1, MaxAge: 1})
		require.NoError(t, err)
		_, ok := logger.file.(*RotatingWriter)
		assert.True(t, ok)
		assert.NoError(t, logger.Close())
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		logger, err := New(Config{Level: "loud"})
		require.NoError(t, err)
		assert.Equal(t, zerolog.InfoLevel, logger.GetZerolog().GetLevel())
	})
}

func TestComponent(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "actions.log")

	logger, err := New(Config{Level: "info", File: logFile})
	require.NoError(t, err)

	l := logger.Component("webhook")
	l.Info().Msg("hello")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"webhook"`)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.True(t, cfg.Console)
	assert.True(t, cfg.Redaction)
}

package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func firstLogLine(t *testing.T, path string) map[string]interface{} {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.SplitN(strings.TrimSpace(string(raw)), "\n", 2)
	require.NotEmpty(t, lines[0])

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &line))
	return line
}

func TestNew(t *testing.T) {
	t.Run("console only", func(t *testing.T) {
		logger, err := New(Config{Level: "info", Console: true})
		require.NoError(t, err)
		defer logger.Close()

		assert.Nil(t, logger.file)
	})

	t.Run("file output carries structured fields", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "lumora.log")
		logger, err := New(Config{Level: "debug", File: path})
		require.NoError(t, err)

		logger.Info().Str("component", "gateway").Msg("dispatching")
		require.NoError(t, logger.Close())

		line := firstLogLine(t, path)
		assert.Equal(t, "dispatching", line["message"])
		assert.Equal(t, "gateway", line["component"])
		assert.NotEmpty(t, line["time"])
	})

	t.Run("redaction scrubs credentials", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "lumora.log")
		logger, err := New(Config{Level: "info", File: path, Redaction: true})
		require.NoError(t, err)

		logger.Info().Str("key", "sk-ant-REDACTED").Msg("credential loaded")
		require.NoError(t, logger.Close())

		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "sk-ant-REDACTED")
		assert.Contains(t, string(raw), "[REDACTED]")
	})

	t.Run("size cap wires in rotation", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "lumora.log")
		logger, err := New(Config{Level: "info", File: path, MaxSize: 1})
		require.NoError(t, err)
		defer logger.Close()

		assert.IsType(t, &RotatingWriter{}, logger.file)
	})

	t.Run("unknown level falls back to info", func(t *testing.T) {
		logger, err := New(Config{Level: "shouting"})
		require.NoError(t, err)
		defer logger.Close()

		assert.Equal(t, zerolog.InfoLevel, logger.GetZerolog().GetLevel())
	})
}

func TestLoggerLevels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lumora.log")
	logger, err := New(Config{Level: "warn", File: path})
	require.NoError(t, err)

	logger.Debug().Msg("suppressed")
	logger.Info().Msg("suppressed")
	logger.Warn().Msg("kept warning")
	logger.Error().Msg("kept error")
	require.NoError(t, logger.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "suppressed")
	assert.Contains(t, string(raw), "kept warning")
	assert.Contains(t, string(raw), "kept error")
}

func TestLoggerWith(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lumora.log")
	logger, err := New(Config{Level: "info", File: path})
	require.NoError(t, err)

	child := logger.With().Str("component", "ledger").Logger()
	child.Info().Msg("reaper pass")
	require.NoError(t, logger.Close())

	line := firstLogLine(t, path)
	assert.Equal(t, "ledger", line["component"])
	assert.Equal(t, "reaper pass", line["message"])
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.True(t, cfg.Console)
	assert.True(t, cfg.Pretty)
	assert.True(t, cfg.Redaction)
	assert.Equal(t, 100, cfg.MaxSize)
	assert.Equal(t, 7, cfg.MaxAge)
	assert.True(t, cfg.Compress)
}

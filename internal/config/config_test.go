package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Models.CatalogPath = "/tmp/models.json"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 100, cfg.Server.RateLimitPerMinute)
	assert.True(t, cfg.Models.Watch)
	assert.Equal(t, 8, cfg.Builder.MaxSteps)
	assert.Equal(t, 40, cfg.Builder.MaxToolCalls)
	assert.Equal(t, 15, cfg.Ledger.TicketTTLMinutes)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Redaction)
	assert.Empty(t, cfg.Credentials)
}

func TestValidate(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	t.Run("invalid port", func(t *testing.T) {
		cfg := validConfig()
		cfg.Server.Port = 0
		assert.Error(t, cfg.Validate())

		cfg.Server.Port = 70000
		assert.Error(t, cfg.Validate())
	})

	t.Run("missing catalog path", func(t *testing.T) {
		cfg := validConfig()
		cfg.Models.CatalogPath = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("credential validation", func(t *testing.T) {
		cfg := validConfig()
		cfg.Credentials = []CredentialProfile{{Provider: "gemini", APIKey: "key"}}
		assert.NoError(t, cfg.Validate())

		cfg.Credentials = []CredentialProfile{{Provider: "", APIKey: "key"}}
		assert.Error(t, cfg.Validate())

		cfg.Credentials = []CredentialProfile{{Provider: "bedrock", APIKey: "key"}}
		assert.Error(t, cfg.Validate())

		cfg.Credentials = []CredentialProfile{{Provider: "openai", APIKey: ""}}
		assert.Error(t, cfg.Validate())
	})

	t.Run("ceilings must be positive", func(t *testing.T) {
		cfg := validConfig()
		cfg.Builder.MaxSteps = 0
		assert.Error(t, cfg.Validate())

		cfg = validConfig()
		cfg.Ledger.TicketTTLMinutes = -1
		assert.Error(t, cfg.Validate())
	})
}

func TestLoader(t *testing.T) {
	t.Run("missing file yields defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "lumora.json")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.NotEmpty(t, cfg.DataDir)
		assert.NotEmpty(t, cfg.Models.CatalogPath)
	})

	t.Run("file values override defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "lumora.json")
		require.NoError(t, os.WriteFile(path, []byte(`{
			"server": {"port": 9090},
			"models": {"catalog_path": "/etc/lumora/models.json"},
			"credentials": [{"provider": "gemini", "api_key": "file-key"}]
		}`), 0644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, "/etc/lumora/models.json", cfg.Models.CatalogPath)
		require.Len(t, cfg.Credentials, 1)
		assert.Equal(t, "file-key", cfg.Credentials[0].APIKey)

		// Unset fields keep their defaults
		assert.Equal(t, 8, cfg.Builder.MaxSteps)
	})

	t.Run("malformed file rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "lumora.json")
		require.NoError(t, os.WriteFile(path, []byte(`{broken`), 0644))

		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("save and reload round trip", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "lumora.json")
		loader := NewLoader(path)

		cfg := validConfig()
		cfg.Server.Port = 9999
		cfg.DataDir = "/var/lib/lumora"
		require.NoError(t, loader.Save(cfg))

		reloaded, err := loader.Load()
		require.NoError(t, err)
		assert.Equal(t, 9999, reloaded.Server.Port)
		assert.Equal(t, "/var/lib/lumora", reloaded.DataDir)
	})

	t.Run("config path reporting", func(t *testing.T) {
		loader := NewLoader("/tmp/custom.json")
		assert.Equal(t, "/tmp/custom.json", loader.GetConfigPath())
	})
}

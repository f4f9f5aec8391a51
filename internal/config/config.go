package config

import (
	"encoding/json"
	"fmt"
)

// Config represents the main Lumora configuration
type Config struct {
	// HTTP server
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Model catalog
	Models ModelsConfig `json:"models" mapstructure:"models"`

	// Provider credentials
	Credentials []CredentialProfile `json:"credentials" mapstructure:"credentials"`

	// Builder agent
	Builder BuilderConfig `json:"builder" mapstructure:"builder"`

	// Credit ledger
	Ledger LedgerConfig `json:"ledger" mapstructure:"ledger"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host               string `json:"host" mapstructure:"host"`
	Port               int    `json:"port" mapstructure:"port"`
	RateLimitPerMinute int    `json:"rate_limit_per_minute" mapstructure:"rate_limit_per_minute"`
}

// ModelsConfig holds model catalog configuration
type ModelsConfig struct {
	// Path to the model catalog JSON file. Watched for changes.
	CatalogPath string `json:"catalog_path" mapstructure:"catalog_path"`
	Watch       bool   `json:"watch" mapstructure:"watch"`
}

// CredentialProfile holds one provider API key
type CredentialProfile struct {
	Provider string `json:"provider" mapstructure:"provider"` // anthropic, openai, gemini
	APIKey   string `json:"api_key" mapstructure:"api_key"`
}

// BuilderConfig holds builder agent configuration
type BuilderConfig struct {
	MaxSteps     int `json:"max_steps" mapstructure:"max_steps"`
	MaxToolCalls int `json:"max_tool_calls" mapstructure:"max_tool_calls"`
}

// LedgerConfig holds credit ledger configuration
type LedgerConfig struct {
	// Tickets older than this that were never committed or released are
	// refunded by the reaper.
	TicketTTLMinutes int `json:"ticket_ttl_minutes" mapstructure:"ticket_ttl_minutes"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8080,
			RateLimitPerMinute: 100,
		},
		Models: ModelsConfig{
			Watch: true,
		},
		Builder: BuilderConfig{
			MaxSteps:     8,
			MaxToolCalls: 40,
		},
		Ledger: LedgerConfig{
			TicketTTLMinutes: 15,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		Credentials: []CredentialProfile{},
		DataDir:     "",
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Models.CatalogPath == "" {
		return fmt.Errorf("model catalog path is required")
	}

	validProviders := map[string]bool{"anthropic": true, "openai": true, "gemini": true}
	for i, profile := range c.Credentials {
		if profile.Provider == "" {
			return fmt.Errorf("credential %d: provider is required", i)
		}
		if !validProviders[profile.Provider] {
			return fmt.Errorf("credential %d: invalid provider %s (must be: anthropic, openai, gemini)", i, profile.Provider)
		}
		if profile.APIKey == "" {
			return fmt.Errorf("credential %s: api_key is required", profile.Provider)
		}
	}

	if c.Builder.MaxSteps <= 0 {
		return fmt.Errorf("builder max_steps must be positive")
	}
	if c.Ledger.TicketTTLMinutes <= 0 {
		return fmt.Errorf("ledger ticket_ttl_minutes must be positive")
	}

	return nil
}

package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Settings is the app-level configuration stored in settings.toml. Per-project
// state lives inside each project directory, never here.
type Settings struct {
	// EnginePath overrides ai-engine CLI discovery.
	EnginePath string `toml:"engine_path,omitempty"`

	// Request deadlines in milliseconds. Zero means the built-in default.
	ChatTimeoutMs     int64 `toml:"chat_timeout_ms,omitempty"`
	CompleteTimeoutMs int64 `toml:"complete_timeout_ms,omitempty"`

	Debug   bool   `toml:"debug"`
	LogFile string `toml:"log_file,omitempty"`

	Security  SecurityConfig  `toml:"security"`
	Embedding EmbeddingConfig `toml:"embedding"`
}

// SecurityConfig selects how provider API keys are stored on disk.
type SecurityConfig struct {
	// Method is "plaintext" (credentials.toml) or "ssh_key"
	// (credentials.enc, AES key derived from an SSH signature).
	Method string `toml:"method"`

	// SSHKeyPath is the private key used when Method is "ssh_key".
	// Empty means ~/.ssh/creatorai_ed25519.
	SSHKeyPath string `toml:"ssh_key_path,omitempty"`
}

// EmbeddingConfig selects the Ollama server and model used to build the
// knowledge index.
type EmbeddingConfig struct {
	Host  string `toml:"host"`
	Model string `toml:"model"`
}

func DefaultSettings() *Settings {
	return &Settings{
		Security: SecurityConfig{
			Method: string(SecurityPlainText),
		},
		Embedding: EmbeddingConfig{
			Host:  "http://localhost:11434",
			Model: "bge-m3",
		},
	}
}

func GenerateSettingsTemplate() string {
	return `# Creator Studio Configuration
# Location: ~/.creatorai/settings.toml
# This file uses TOML format: https://toml.io

# Path to the ai-engine CLI. Leave empty to auto-discover a bundled binary
# or the in-repo packages/ai-engine/src/cli.ts.
# engine_path = ""

# Request deadlines in milliseconds. 0 keeps the defaults
# (chat: 600000, completion: 30000).
# chat_timeout_ms = 0
# complete_timeout_ms = 0

# Enable verbose logging
debug = false

# Write logs to a file in addition to stderr (optional)
# log_file = ""

[security]
# How provider API keys are stored: "plaintext" keeps credentials.toml,
# "ssh_key" encrypts credentials.enc with a key derived from an SSH signature.
method = "plaintext"

# Private key used when method = "ssh_key". Leave empty to use
# ~/.ssh/creatorai_ed25519.
# ssh_key_path = ""

[embedding]
# Ollama server used to embed knowledge documents
host = "http://localhost:11434"

# Embedding model
model = "bge-m3"
`
}

// LoadSettings reads settings.toml, writing the commented template first if
// no file exists yet.
func LoadSettings() (*Settings, error) {
	cfg := DefaultSettings()
	settingsPath := GetSettingsFilePath()

	if !FileExists(settingsPath) {
		if err := CreateDefaultSettings(); err != nil {
			return nil, fmt.Errorf("failed to create settings: %w", err)
		}
		return cfg, nil
	}

	if _, err := toml.DecodeFile(settingsPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	if cfg.Security.Method == "" {
		cfg.Security.Method = string(SecurityPlainText)
	}
	return cfg, nil
}

func SaveSettings(cfg *Settings) error {
	if err := EnsureDir(GetConfigDir()); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Create with secure permissions (0600 - contains host settings)
	f, err := os.OpenFile(GetSettingsFilePath(), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create settings file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	return nil
}

func CreateDefaultSettings() error {
	if err := EnsureDir(GetConfigDir()); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	settingsPath := GetSettingsFilePath()
	if FileExists(settingsPath) {
		return nil
	}

	if err := os.WriteFile(settingsPath, []byte(GenerateSettingsTemplate()), 0600); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}

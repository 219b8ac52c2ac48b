// Package config handles the configuration of the wallet vault CLI. Values
// come from a YAML file, optionally overridden by environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btclog"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/walletvault/vault/internal/crypto"
)

// Environment variables that override the config file.
const (
	EnvVaultPath = "WALLETVAULT_PATH"
	EnvLogLevel  = "WALLETVAULT_LOG_LEVEL"
	EnvLogFile   = "WALLETVAULT_LOG_FILE"
)

// Config represents the CLI configuration
type Config struct {
	VaultPath          string              `yaml:"vault_path"`
	Network            string              `yaml:"network"`
	ClipboardTTL       time.Duration       `yaml:"clipboard_ttl"`
	ConfirmDestructive bool                `yaml:"confirm_destructive"`
	KDF                crypto.Argon2Params `yaml:"kdf"`
	LogLevel           string              `yaml:"log_level"`
	LogFile            string              `yaml:"log_file"`
	LogMaxSizeMB       int                 `yaml:"log_max_size_mb"`
	LogMaxBackups      int                 `yaml:"log_max_backups"`
}

// DefaultPath returns ~/.config/walletvault/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "walletvault", "config.yaml"), nil
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		VaultPath:          filepath.Join(home, ".local", "share", "walletvault", "vault.db"),
		Network:            "mainnet",
		ClipboardTTL:       30 * time.Second,
		ConfirmDestructive: true,
		KDF:                crypto.DefaultArgon2Params(),
		LogLevel:           "info",
		LogMaxSizeMB:       10,
		LogMaxBackups:      3,
	}
}

// Validate checks the values that the file or the environment can break.
func (c *Config) Validate() error {
	if c.VaultPath == "" {
		return fmt.Errorf("vault_path must be set")
	}
	if err := crypto.ValidateArgon2Params(c.KDF); err != nil {
		return fmt.Errorf("invalid kdf: %w", err)
	}
	if _, ok := btclog.LevelFromString(c.LogLevel); !ok {
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	switch c.Network {
	case "mainnet", "testnet", "regtest", "signet":
	default:
		return fmt.Errorf("invalid network %q", c.Network)
	}
	if c.ClipboardTTL < 0 {
		return fmt.Errorf("clipboard_ttl must not be negative")
	}
	return nil
}

// LoadConfig loads configuration from file, creating it with defaults if it
// does not exist, then applies environment overrides. A .env file in the
// working directory is loaded first when present.
func LoadConfig(configPath string) (*Config, error) {
	// A missing .env file is the normal case.
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if configPath != "" {
		if err := readFile(cfg, configPath); err != nil {
			return cfg, err
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ReadConfig loads the file alone, without environment overrides, for
// callers that write the configuration back.
func ReadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()
	if err := readFile(cfg, configPath); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readFile(cfg *Config, configPath string) error {
	cleanPath := filepath.Clean(configPath)

	if _, err := os.Stat(cleanPath); os.IsNotExist(err) {
		if err := SaveConfig(cfg, cleanPath); err != nil {
			return fmt.Errorf("failed to create default config: %w", err)
		}
		return nil
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvVaultPath)); v != "" {
		cfg.VaultPath = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.LogFile = v
	}
}

// SaveConfig saves configuration to file
func SaveConfig(cfg *Config, configPath string) error {
	cleanPath := filepath.Clean(configPath)

	dir := filepath.Dir(cleanPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := writeFileAtomic(cleanPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvVaultPath, EnvLogLevel, EnvLogFile} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigCreatesDefault(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().KDF, cfg.KDF)
	assert.Equal(t, "mainnet", cfg.Network)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadConfigRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := DefaultConfig()
	cfg.VaultPath = "/tmp/wallet.db"
	cfg.Network = "testnet"
	cfg.ClipboardTTL = 5 * time.Second
	cfg.LogLevel = "debug"
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, SaveConfig(DefaultConfig(), path))

	t.Setenv(EnvVaultPath, "/srv/vault.db")
	t.Setenv(EnvLogLevel, "TRACE")
	t.Setenv(EnvLogFile, "/var/log/walletvault.log")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/vault.db", cfg.VaultPath)
	assert.Equal(t, "trace", cfg.LogLevel)
	assert.Equal(t, "/var/log/walletvault.log", cfg.LogFile)
}

func TestLoadConfigInvalid(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name    string
		content string
	}{
		{"malformed yaml", "vault_path: [unterminated"},
		{"bad network", "network: moonnet\n"},
		{"bad log level", "log_level: loud\n"},
		{"weak kdf", "kdf:\n  memory: 8\n  iterations: 1\n  parallelism: 1\n"},
		{"negative ttl", "clipboard_ttl: -1s\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.VaultPath = ""
	assert.Error(t, cfg.Validate())
}

func TestSaveConfigReplacesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := DefaultConfig()
	require.NoError(t, SaveConfig(cfg, path))

	cfg.Network = "signet"
	require.NoError(t, SaveConfig(cfg, path))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files may be left behind")

	loaded, err := ReadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "signet", loaded.Network)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

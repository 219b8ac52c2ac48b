package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/walletvault/vault/internal/config"
)

func newConfigCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage walletvault configuration",
		Long: `Manage walletvault configuration settings.

You can view, set, or get individual configuration values.
Configuration is stored in ~/.config/walletvault/config.yaml by default.

Example:
  walletvault config path                  # Show config file path
  walletvault config get clipboard_ttl     # Get clipboard timeout
  walletvault config set network testnet   # Derive testnet keys
  walletvault config get                   # Show all configuration`,
	}

	getCmd := &cobra.Command{
		Use:   "get [key]",
		Short: "Get configuration value(s)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runConfigGetAll(cmd.OutOrStdout(), a)
			}
			return runConfigGet(cmd.OutOrStdout(), a.cfg, args[0])
		},
	}

	setCmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSet(cmd.OutOrStdout(), a, args[0], args[1])
		},
	}

	pathCmd := &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeOutput(cmd.OutOrStdout(), "%s\n", a.cfgFile)
		},
	}

	cmd.AddCommand(getCmd, setCmd, pathCmd)
	return cmd
}

// configKeys lists the settable keys in display order.
var configKeys = []string{
	"vault_path",
	"network",
	"clipboard_ttl",
	"confirm_destructive",
	"kdf.memory",
	"kdf.iterations",
	"kdf.parallelism",
	"log_level",
	"log_file",
	"log_max_size_mb",
	"log_max_backups",
}

func normalizeConfigKey(key string) string {
	return strings.ReplaceAll(strings.ToLower(key), "-", "_")
}

func configValue(cfg *config.Config, key string) (string, error) {
	switch normalizeConfigKey(key) {
	case "vault_path":
		return cfg.VaultPath, nil
	case "network":
		return cfg.Network, nil
	case "clipboard_ttl":
		return cfg.ClipboardTTL.String(), nil
	case "confirm_destructive":
		return strconv.FormatBool(cfg.ConfirmDestructive), nil
	case "kdf.memory":
		return strconv.FormatUint(uint64(cfg.KDF.Memory), 10), nil
	case "kdf.iterations":
		return strconv.FormatUint(uint64(cfg.KDF.Iterations), 10), nil
	case "kdf.parallelism":
		return strconv.FormatUint(uint64(cfg.KDF.Parallelism), 10), nil
	case "log_level":
		return cfg.LogLevel, nil
	case "log_file":
		return cfg.LogFile, nil
	case "log_max_size_mb":
		return strconv.Itoa(cfg.LogMaxSizeMB), nil
	case "log_max_backups":
		return strconv.Itoa(cfg.LogMaxBackups), nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

func runConfigGetAll(out io.Writer, a *app) error {
	if err := writeOutput(out, "Configuration file: %s\n\n", a.cfgFile); err != nil {
		return err
	}
	for _, key := range configKeys {
		value, err := configValue(a.cfg, key)
		if err != nil {
			return err
		}
		if err := writeOutput(out, "%s: %s\n", key, value); err != nil {
			return err
		}
	}
	return nil
}

func runConfigGet(out io.Writer, cfg *config.Config, key string) error {
	value, err := configValue(cfg, key)
	if err != nil {
		return err
	}
	return writeOutput(out, "%s\n", value)
}

func setConfigValue(cfg *config.Config, key, value string) error {
	switch normalizeConfigKey(key) {
	case "vault_path":
		cfg.VaultPath = value
	case "network":
		cfg.Network = value
	case "clipboard_ttl":
		duration, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		cfg.ClipboardTTL = duration
	case "confirm_destructive":
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value: %w", err)
		}
		cfg.ConfirmDestructive = boolVal
	case "kdf.memory":
		intVal, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid integer value: %w", err)
		}
		cfg.KDF.Memory = uint32(intVal)
	case "kdf.iterations":
		intVal, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid integer value: %w", err)
		}
		cfg.KDF.Iterations = uint32(intVal)
	case "kdf.parallelism":
		intVal, err := strconv.ParseUint(value, 10, 8)
		if err != nil {
			return fmt.Errorf("invalid integer value: %w", err)
		}
		cfg.KDF.Parallelism = uint8(intVal)
	case "log_level":
		cfg.LogLevel = strings.ToLower(value)
	case "log_file":
		cfg.LogFile = value
	case "log_max_size_mb", "log_max_backups":
		intVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value: %w", err)
		}
		if normalizeConfigKey(key) == "log_max_size_mb" {
			cfg.LogMaxSizeMB = intVal
		} else {
			cfg.LogMaxBackups = intVal
		}
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}

func runConfigSet(out io.Writer, a *app, key, value string) error {
	// Write back the file contents, not the flag and environment overrides.
	fileCfg, err := config.ReadConfig(a.cfgFile)
	if err != nil {
		return err
	}

	if err := setConfigValue(fileCfg, key, value); err != nil {
		return err
	}
	if err := fileCfg.Validate(); err != nil {
		return err
	}

	if err := config.SaveConfig(fileCfg, a.cfgFile); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	return writeOutput(out, "✓ Configuration updated: %s = %s\n", key, value)
}

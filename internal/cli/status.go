package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/walletvault/vault/internal/crypto"
	"github.com/walletvault/vault/internal/vault"
)

type statusInfo struct {
	VaultPath     string              `json:"vault_path"`
	Network       string              `json:"network"`
	Initialised   bool                `json:"initialised"`
	LegacyPending bool                `json:"legacy_import_pending"`
	Version       *int                `json:"version,omitempty"`
	LatestVersion int                 `json:"latest_version"`
	KDF           crypto.Argon2Params `json:"kdf"`
	SizeBytes     int64               `json:"size_bytes"`
}

func newStatusCommand(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show vault status",
		Long:  "Display whether the vault exists, its schema version and its KDF parameters. No password is needed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			return a.withSession(ctx, func(s *Session) error {
				info, err := collectStatus(cmd, a, s)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), info)
				}
				return printStatus(cmd, info)
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output status as JSON")
	return cmd
}

func collectStatus(cmd *cobra.Command, a *app, s *Session) (*statusInfo, error) {
	ctx := cmd.Context()

	info := &statusInfo{
		VaultPath:     a.cfg.VaultPath,
		Network:       a.cfg.Network,
		LatestVersion: vault.LatestVaultVersion(),
		KDF:           s.params,
	}

	var err error
	if info.Initialised, err = s.vault.IsInitialised(ctx); err != nil {
		return nil, err
	}
	if info.LegacyPending, err = s.vault.HasMigrationFromOldSeedVault(ctx); err != nil {
		return nil, err
	}

	version, ok, err := s.vault.Version(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		info.Version = &version
	}

	if info.SizeBytes, err = s.db.Size(); err != nil {
		return nil, err
	}

	return info, nil
}

func printStatus(cmd *cobra.Command, info *statusInfo) error {
	out := cmd.OutOrStdout()

	if err := writeOutput(out, "Vault: %s\n", info.VaultPath); err != nil {
		return err
	}
	if !info.Initialised {
		return writeOutput(out, "State: not initialised (run 'walletvault init')\n")
	}

	state := "initialised"
	if info.LegacyPending {
		state = "legacy vault, imported on next unlock"
	}

	version := "unversioned"
	if info.Version != nil {
		version = strconv.Itoa(*info.Version)
		if *info.Version < info.LatestVersion {
			version += " (migrates on next unlock)"
		}
	}

	return writeOutput(out, "State: %s\n"+
		"Schema version: %s\n"+
		"Network: %s\n"+
		"KDF: argon2id memory=%dKB iterations=%d parallelism=%d\n"+
		"Size: %d bytes\n",
		state, version, info.Network,
		info.KDF.Memory, info.KDF.Iterations, info.KDF.Parallelism,
		info.SizeBytes)
}

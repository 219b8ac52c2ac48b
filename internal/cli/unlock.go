package cli

import "github.com/spf13/cobra"

func newUnlockCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock",
		Short: "Check the password and apply pending upgrades",
		Long: `Unlock the vault with your password.

Unlocking imports a vault written by an older release and runs any pending
schema migrations. Each command unlocks for its own run only, so this is
also the way to check a password.

Example:
  walletvault unlock`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			return a.withUnlocked(ctx, func(s *Session) error {
				version, _, err := s.vault.Version(ctx)
				if err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(),
					"✓ Vault unlocked successfully (schema version %d)\n", version)
			})
		},
	}
}


package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newResetCommand(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every wallet and setting in the vault",
		Long: `Delete the key hierarchy, every wallet and every key-value item.

The vault file is kept and can be initialised again. A vault written by an
older release is not touched and will still be imported on the next unlock.
This operation cannot be undone.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			ok, err := a.confirm(fmt.Sprintf("Delete all wallets in %s?", a.cfg.VaultPath), yes)
			if err != nil {
				return err
			}
			if !ok {
				return writeOutput(cmd.OutOrStdout(), "Reset cancelled\n")
			}

			return a.withSession(ctx, func(s *Session) error {
				if err := s.vault.Reset(ctx); err != nil {
					return fmt.Errorf("failed to reset vault: %w", err)
				}
				if err := s.forgetParams(ctx); err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), "✓ Vault reset\n")
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

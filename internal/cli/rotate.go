package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPasswdCommand(a *app) *cobra.Command {
	var newPassphrase string

	cmd := &cobra.Command{
		Use:   "passwd",
		Short: "Change the vault password",
		Long: `Change the vault password while preserving all vault data.

The seed and data keys are kept; only their wrapping under the password
hash changes, so wallets and key-value items are not re-encrypted.

Example:
  walletvault passwd`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			return a.withSession(ctx, func(s *Session) error {
				current, err := a.password("Enter current password: ")
				if err != nil {
					return err
				}

				next := newPassphrase
				if next == "" {
					if next, err = a.prompter.PasswordConfirm("Enter new password: "); err != nil {
						return err
					}
				}
				if len(next) < minPasswordLength {
					return fmt.Errorf("password is too short (minimum %d characters)", minPasswordLength)
				}

				if err := s.vault.ChangePassword(ctx, current, next); err != nil {
					return fmt.Errorf("failed to change password: %w", err)
				}
				if err := s.saveParams(ctx); err != nil {
					return err
				}

				log.Infof("Vault password changed")
				return writeOutput(cmd.OutOrStdout(), "✓ Vault password changed successfully\n")
			})
		},
	}

	cmd.Flags().StringVar(&newPassphrase, "new-passphrase", "", "New password (for non-interactive use)")
	return cmd
}

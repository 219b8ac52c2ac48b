package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/walletvault/vault/internal/crypto"
)

// minPasswordLength is enforced on every new vault password.
const minPasswordLength = 8

func newInitCommand(a *app) *cobra.Command {
	var (
		kdfMemory      uint32
		kdfIterations  uint32
		kdfParallelism uint8
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new vault",
		Long: `Initialize a new vault with a password and KDF parameters.

The vault will be created with strong cryptographic defaults:
- Argon2id password hashing
- AES-256-GCM wrapping of the seed and data keys
- Secure file permissions (0600)

The KDF parameters are stored with the vault; later config changes do not
affect an existing vault.

Example:
  walletvault init
  walletvault init --kdf-memory 131072 --kdf-iterations 5
  walletvault init --vault /path/to/vault.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			params := a.cfg.KDF
			if cmd.Flags().Changed("kdf-memory") {
				params.Memory = kdfMemory
			}
			if cmd.Flags().Changed("kdf-iterations") {
				params.Iterations = kdfIterations
			}
			if cmd.Flags().Changed("kdf-parallelism") {
				params.Parallelism = kdfParallelism
			}
			if err := crypto.ValidateArgon2Params(params); err != nil {
				return fmt.Errorf("invalid KDF parameters: %w", err)
			}
			a.cfg.KDF = params

			return runInit(cmd, a)
		},
	}

	defaults := crypto.DefaultArgon2Params()
	cmd.Flags().Uint32Var(&kdfMemory, "kdf-memory", defaults.Memory, "Memory parameter for Argon2id (KB)")
	cmd.Flags().Uint32Var(&kdfIterations, "kdf-iterations", defaults.Iterations, "Time parameter for Argon2id")
	cmd.Flags().Uint8Var(&kdfParallelism, "kdf-parallelism", defaults.Parallelism, "Parallelism parameter for Argon2id")

	return cmd
}

func newPassword(a *app, prompt string) (string, error) {
	password := a.passphrase
	if password == "" {
		var err error
		password, err = a.prompter.PasswordConfirm(prompt)
		if err != nil {
			return "", err
		}
	}

	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	if len(password) < minPasswordLength {
		return "", fmt.Errorf("password is too short (minimum %d characters)", minPasswordLength)
	}
	return password, nil
}

func runInit(cmd *cobra.Command, a *app) error {
	ctx := cmd.Context()

	return a.withSession(ctx, func(s *Session) error {
		initialised, err := s.vault.IsInitialised(ctx)
		if err != nil {
			return err
		}
		if initialised {
			return fmt.Errorf("vault already exists at %s", a.cfg.VaultPath)
		}

		password, err := newPassword(a, "Choose a vault password: ")
		if err != nil {
			return err
		}

		if err := s.vault.Initialise(ctx, password); err != nil {
			return fmt.Errorf("failed to create vault: %w", err)
		}
		if err := s.saveParams(ctx); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		return writeOutput(out, "✓ Vault created successfully at %s\n"+
			"KDF Parameters:\n"+
			"  Memory: %d KB\n"+
			"  Iterations: %d\n"+
			"  Parallelism: %d\n"+
			"\nUse 'walletvault wallet create' to add your first wallet.\n",
			a.cfg.VaultPath, s.params.Memory, s.params.Iterations, s.params.Parallelism)
	})
}

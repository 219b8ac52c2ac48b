package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/walletvault/vault/internal/clipboard"
	"github.com/walletvault/vault/internal/crypto"
	"github.com/walletvault/vault/internal/domain"
	"github.com/walletvault/vault/internal/vault"
)

func newWalletCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Manage wallets",
		Long: `Create, import, inspect and delete the wallets kept in the vault.

The first wallet stored becomes the primary wallet and cannot be deleted.
Every wallet command needs the vault password.`,
	}

	cmd.AddCommand(
		newWalletCreateCommand(a),
		newWalletImportMnemonicCommand(a),
		newWalletImportSeedCommand(a),
		newWalletListCommand(a),
		newWalletRevealCommand(a),
		newWalletXpubCommand(a),
		newWalletDeleteCommand(a),
	)
	return cmd
}

func addDerivationFlag(cmd *cobra.Command, derivation *string) {
	cmd.Flags().StringVar(derivation, "derivation", string(domain.DerivationAccount),
		"How the wallet maps numbers to derivation paths (account or index)")
}

// withSeedVault unlocks the vault and hands fn the wallet store.
func (a *app) withSeedVault(ctx context.Context, fn func(*vault.SeedVault) error) error {
	return a.withUnlocked(ctx, func(s *Session) error {
		sv, err := s.seedVault()
		if err != nil {
			return err
		}
		return fn(sv)
	})
}

func newWalletCreateCommand(a *app) *cobra.Command {
	var (
		words      int
		derivation string
		show       bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Generate a new mnemonic wallet",
		Long: `Generate a fresh BIP-39 mnemonic and store it as a new wallet.

Example:
  walletvault wallet create
  walletvault wallet create --words 24 --show`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dt, err := domain.ParseDerivationType(derivation)
			if err != nil {
				return err
			}
			if words < 12 || words > 24 || words%3 != 0 {
				return fmt.Errorf("invalid word count %d (want 12, 15, 18, 21 or 24)", words)
			}

			mnemonic, err := crypto.NewMnemonic(words / 3 * 32)
			if err != nil {
				return fmt.Errorf("failed to generate mnemonic: %w", err)
			}

			ctx := cmd.Context()
			return a.withSeedVault(ctx, func(sv *vault.SeedVault) error {
				id, err := sv.StoreWalletByMnemonic(ctx, mnemonic, dt)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if err := writeOutput(out, "✓ Wallet %s created\n", id); err != nil {
					return err
				}
				if show {
					return SecurePrint(out, "Mnemonic: %s\n", mnemonic)
				}
				return writeOutput(out, "Use 'walletvault wallet reveal %s' to back up the mnemonic.\n", id)
			})
		},
	}

	cmd.Flags().IntVar(&words, "words", 12, "Number of mnemonic words (12, 15, 18, 21 or 24)")
	cmd.Flags().BoolVar(&show, "show", false, "Print the new mnemonic")
	addDerivationFlag(cmd, &derivation)
	return cmd
}

func newWalletImportMnemonicCommand(a *app) *cobra.Command {
	var derivation string

	cmd := &cobra.Command{
		Use:   "import-mnemonic",
		Short: "Store an existing BIP-39 mnemonic",
		Long: `Store an existing BIP-39 mnemonic as a new wallet. The mnemonic is
read from standard input so it never appears in the shell history.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dt, err := domain.ParseDerivationType(derivation)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			return a.withSeedVault(ctx, func(sv *vault.SeedVault) error {
				mnemonic, err := a.prompter.Input("Enter mnemonic: ")
				if err != nil {
					return err
				}

				id, err := sv.StoreWalletByMnemonic(ctx, mnemonic, dt)
				if err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), "✓ Wallet %s imported\n", id)
			})
		},
	}

	addDerivationFlag(cmd, &derivation)
	return cmd
}

func newWalletImportSeedCommand(a *app) *cobra.Command {
	var derivation string

	cmd := &cobra.Command{
		Use:   "import-seed",
		Short: "Store a raw BIP-32 seed",
		Long: `Store a raw seed as a new wallet. The seed is read from standard input
and may be hex (optionally 0x prefixed), base58 or base64 encoded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dt, err := domain.ParseDerivationType(derivation)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			return a.withSeedVault(ctx, func(sv *vault.SeedVault) error {
				seed, err := a.prompter.Input("Enter seed: ")
				if err != nil {
					return err
				}

				id, err := sv.StoreWalletBySeedString(ctx, seed, dt)
				if err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), "✓ Wallet %s imported\n", id)
			})
		},
	}

	addDerivationFlag(cmd, &derivation)
	return cmd
}

type walletInfo struct {
	ID         string                `json:"id"`
	Primary    bool                  `json:"primary"`
	KeyType    domain.KeyType        `json:"key_type"`
	Derivation domain.DerivationType `json:"derivation"`
}

func listWallets(ctx context.Context, sv *vault.SeedVault) ([]walletInfo, error) {
	ids, err := sv.GetWalletIds(ctx)
	if err != nil {
		return nil, err
	}
	primary, _, err := sv.GetPrimaryWalletId(ctx)
	if err != nil {
		return nil, err
	}

	wallets := make([]walletInfo, 0, len(ids))
	for _, id := range ids {
		node, err := sv.GetWalletRootNode(ctx, id)
		if err != nil {
			return nil, err
		}
		secrets, err := sv.GetWalletSecrets(ctx, id)
		if err != nil {
			return nil, err
		}

		keyType := domain.KeyTypeSeed
		if secrets.Mnemonic != "" {
			keyType = domain.KeyTypeMnemonic
		}

		wallets = append(wallets, walletInfo{
			ID:         id,
			Primary:    id == primary,
			KeyType:    keyType,
			Derivation: node.DerivationType,
		})
	}
	return wallets, nil
}

func newWalletListCommand(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List wallets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withSeedVault(ctx, func(sv *vault.SeedVault) error {
				wallets, err := listWallets(ctx, sv)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if asJSON {
					return writeJSON(out, wallets)
				}
				if len(wallets) == 0 {
					return writeOutput(out, "No wallets found\n"+
						"Use 'walletvault wallet create' to create your first wallet\n")
				}
				return outputWalletsTable(out, wallets)
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")
	return cmd
}

func outputWalletsTable(out io.Writer, wallets []walletInfo) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	if _, err := fmt.Fprintf(w, "ID\tTYPE\tDERIVATION\tPRIMARY\n"); err != nil {
		return fmt.Errorf("failed to write table header: %w", err)
	}
	for _, wallet := range wallets {
		primary := ""
		if wallet.Primary {
			primary = "*"
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			wallet.ID, wallet.KeyType, wallet.Derivation, primary); err != nil {
			return fmt.Errorf("failed to write wallet: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	return writeOutput(out, "\nFound %d wallets\n", len(wallets))
}

func newWalletRevealCommand(a *app) *cobra.Command {
	var (
		format     string
		copyToClip bool
	)

	cmd := &cobra.Command{
		Use:   "reveal <wallet-id>",
		Short: "Print or copy the secret of a wallet",
		Long: `Print the secret of a wallet for backup.

Formats:
  mnemonic  the BIP-39 words (mnemonic wallets only, the default for them)
  hex       the BIP-32 seed as hex (the default for seed wallets)
  base58    the BIP-32 seed as base58
  base64    the BIP-32 seed as base64

With --copy the secret goes to the clipboard instead and is cleared after
the configured clipboard_ttl.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withSeedVault(ctx, func(sv *vault.SeedVault) error {
				secrets, err := sv.GetWalletSecrets(ctx, args[0])
				if err != nil {
					return err
				}

				secret, err := selectSecret(secrets, format)
				if err != nil {
					return err
				}

				if !copyToClip {
					return SecurePrint(cmd.OutOrStdout(), "%s\n", secret)
				}
				return copySecret(ctx, cmd.OutOrStdout(), secret, a.cfg.ClipboardTTL)
			})
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "Secret format (mnemonic, hex, base58, base64)")
	cmd.Flags().BoolVarP(&copyToClip, "copy", "c", false, "Copy the secret to the clipboard")
	return cmd
}

func selectSecret(secrets *vault.WalletSecrets, format string) (string, error) {
	if format == "" {
		format = "hex"
		if secrets.Mnemonic != "" {
			format = "mnemonic"
		}
	}

	switch format {
	case "mnemonic":
		if secrets.Mnemonic == "" {
			return "", fmt.Errorf("wallet was stored from a seed and has no mnemonic")
		}
		return secrets.Mnemonic, nil
	case "hex":
		return secrets.SeedHex, nil
	case "base58":
		return secrets.SeedBase58, nil
	case "base64":
		return secrets.SeedBase64, nil
	default:
		return "", fmt.Errorf("unknown format %q", format)
	}
}

// copySecret copies secret and waits until the clipboard is cleared, so the
// process does not exit with the secret still on the clipboard.
func copySecret(ctx context.Context, out io.Writer, secret string, ttl time.Duration) error {
	if !clipboard.IsAvailable() {
		return fmt.Errorf("clipboard is not available, use reveal without --copy")
	}

	cleared, err := clipboard.CopyWithTimeout(ctx, secret, ttl)
	if err != nil {
		return err
	}

	if err := writeOutput(out, "✓ Copied to clipboard (clears in %s)\n", ttl.Round(time.Second)); err != nil {
		return err
	}

	<-cleared
	return nil
}

func newWalletXpubCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "xpub <wallet-id>",
		Short: "Print the extended public root key of a wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withSeedVault(ctx, func(sv *vault.SeedVault) error {
				node, err := sv.GetWalletRootNode(ctx, args[0])
				if err != nil {
					return err
				}

				pub, err := node.RootKey.Neuter()
				if err != nil {
					return fmt.Errorf("failed to derive public key: %w", err)
				}
				return writeOutput(cmd.OutOrStdout(), "%s\n", pub.String())
			})
		},
	}
}

func newWalletDeleteCommand(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <wallet-id>",
		Short: "Delete a wallet from the vault",
		Long: `Delete a wallet from the vault permanently.

This action cannot be undone. You will be prompted for confirmation
unless you use the --yes flag. The primary wallet cannot be deleted.

Example:
  walletvault wallet delete 6f1c...
  walletvault wallet delete 6f1c... --yes`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			ctx := cmd.Context()

			return a.withSeedVault(ctx, func(sv *vault.SeedVault) error {
				// Unknown ids are a silent no-op in the store.
				if _, err := sv.GetWalletRootNode(ctx, id); err != nil {
					return err
				}

				ok, err := a.confirm(fmt.Sprintf("Delete wallet %s?", id), yes)
				if err != nil {
					return err
				}
				if !ok {
					return writeOutput(cmd.OutOrStdout(), "Deletion cancelled\n")
				}

				if err := sv.DeleteWallet(ctx, id); err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), "✓ Wallet %s deleted\n", id)
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation prompt")
	return cmd
}

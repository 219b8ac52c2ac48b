package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/walletvault/vault/internal/config"
)

// EnvPassphrase supplies the vault password for non-interactive use.
const EnvPassphrase = "WALLETVAULT_PASSPHRASE"

// app carries the global flags and the state built by the root command
// before any subcommand runs.
type app struct {
	cfgFile    string
	vaultPath  string
	network    string
	passphrase string
	verbose    bool

	cfg       *config.Config
	prompter  *Prompter
	logCloser io.Closer
}

// NewRootCommand builds the walletvault command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "walletvault",
		Short: "A local, password protected wallet secret vault",
		Long: `Walletvault keeps wallet mnemonics and seeds in a local encrypted vault.

Secrets are protected by a two tier key hierarchy:
- the seed key guards wallet secrets and needs the password on every use
- the data key guards the address book and preferences

Keys are wrapped with AES-256-GCM under an Argon2id password hash. Vaults
written by older releases are imported and migrated on first unlock.`,
		Version:       "1.0.0",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.logCloser == nil {
				return nil
			}
			return a.logCloser.Close()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is $HOME/.config/walletvault/config.yaml)")
	flags.StringVar(&a.vaultPath, "vault", "", "vault database path")
	flags.StringVar(&a.network, "network", "", "bitcoin network of derived keys (mainnet, testnet, regtest, signet)")
	flags.StringVar(&a.passphrase, "passphrase", "", "vault password (for non-interactive use, prefer $"+EnvPassphrase+")")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(
		newInitCommand(a),
		newStatusCommand(a),
		newUnlockCommand(a),
		newPasswdCommand(a),
		newResetCommand(a),
		newWalletCommand(a),
		newContactsCommand(a),
		newPrefsCommand(a),
		newItemsCommand(a),
		newConfigCommand(a),
	)

	return rootCmd
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return NewRootCommand().ExecuteContext(ctx)
}

func (a *app) setup(cmd *cobra.Command) error {
	if a.cfgFile == "" {
		path, err := config.DefaultPath()
		if err != nil {
			return err
		}
		a.cfgFile = path
	}

	cfg, err := config.LoadConfig(a.cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if a.vaultPath != "" {
		cfg.VaultPath = a.vaultPath
	}
	if a.network != "" {
		cfg.Network = a.network
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	a.cfg = cfg

	if a.passphrase == "" {
		a.passphrase = os.Getenv(EnvPassphrase)
	}

	a.prompter = NewPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())

	a.logCloser, err = setupLogging(cmd.ErrOrStderr(), cfg, a.verbose)
	if err != nil {
		return err
	}

	log.Debugf("Using config %s and vault %s", a.cfgFile, cfg.VaultPath)
	return nil
}

// password returns the --passphrase value or prompts for one.
func (a *app) password(prompt string) (string, error) {
	if a.passphrase != "" {
		return a.passphrase, nil
	}
	return a.prompter.Password(prompt)
}

// confirm asks before a destructive action unless confirmations are off.
func (a *app) confirm(prompt string, yes bool) (bool, error) {
	if yes || !a.cfg.ConfirmDestructive {
		return true, nil
	}
	return a.prompter.Confirm(prompt, false)
}

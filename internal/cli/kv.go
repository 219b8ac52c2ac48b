package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/walletvault/vault/internal/domain"
	"github.com/walletvault/vault/internal/vault"
)

// withKeyValueVault unlocks the vault and hands fn the key-value store.
func (a *app) withKeyValueVault(ctx context.Context, fn func(*vault.KeyValueVault) error) error {
	return a.withUnlocked(ctx, func(s *Session) error {
		kv, err := s.keyValueVault()
		if err != nil {
			return err
		}
		return fn(kv)
	})
}

func newContactsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contacts",
		Short: "Manage the encrypted address book",
	}

	cmd.AddCommand(
		newContactsListCommand(a),
		newContactsAddCommand(a),
		newContactsRemoveCommand(a),
	)
	return cmd
}

func newContactsListCommand(a *app) *cobra.Command {
	var (
		search string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List contacts",
		Long: `List the address book, with optional filtering.

The --search flag matches name, address, chain and tags, using '+' or
spaces as an AND separator (e.g. 'btc+exchange').

Example:
  walletvault contacts list
  walletvault contacts list --search alice
  walletvault contacts list --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withKeyValueVault(ctx, func(kv *vault.KeyValueVault) error {
				book, _, err := vault.Get(ctx, kv, vault.AddressBookKey)
				if err != nil {
					return err
				}

				contacts := book.Search(search)
				out := cmd.OutOrStdout()
				if asJSON {
					return writeJSON(out, contacts)
				}
				if len(contacts) == 0 {
					if search != "" {
						return writeOutput(out, "No contacts found matching the filter criteria\n")
					}
					return writeOutput(out, "No contacts found\n"+
						"Use 'walletvault contacts add <name> <address>' to add one\n")
				}
				return outputContactsTable(out, contacts)
			})
		},
	}

	cmd.Flags().StringVar(&search, "search", "", "Search in name, address, chain and tags")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")
	return cmd
}

func outputContactsTable(out io.Writer, contacts []domain.Contact) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	if _, err := fmt.Fprintf(w, "NAME\tCHAIN\tADDRESS\tTAGS\n"); err != nil {
		return fmt.Errorf("failed to write table header: %w", err)
	}
	for _, c := range contacts {
		tags := strings.Join(c.Tags, ",")
		if len(tags) > 40 {
			tags = tags[:37] + "..."
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.Name, c.Chain, c.Address, tags); err != nil {
			return fmt.Errorf("failed to write contact: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	return writeOutput(out, "\nFound %d contacts\n", len(contacts))
}

func newContactsAddCommand(a *app) *cobra.Command {
	var (
		chain string
		tags  []string
	)

	cmd := &cobra.Command{
		Use:   "add <name> <address>",
		Short: "Add or update a contact",
		Long: `Add a contact. A contact with the same chain and address is replaced.

Example:
  walletvault contacts add alice bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq --tags friend`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withKeyValueVault(ctx, func(kv *vault.KeyValueVault) error {
				book, _, err := vault.Get(ctx, kv, vault.AddressBookKey)
				if err != nil {
					return err
				}

				book.Upsert(domain.Contact{
					Name:      args[0],
					Address:   args[1],
					Chain:     chain,
					Tags:      tags,
					CreatedAt: time.Now().UTC(),
				})

				if err := vault.Set(ctx, kv, vault.AddressBookKey, book); err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), "✓ Contact '%s' saved\n", args[0])
			})
		},
	}

	cmd.Flags().StringVar(&chain, "chain", "bitcoin", "Chain of the address")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "Comma-separated tags")
	return cmd
}

func newContactsRemoveCommand(a *app) *cobra.Command {
	var chain string

	cmd := &cobra.Command{
		Use:   "remove <address>",
		Short: "Remove a contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withKeyValueVault(ctx, func(kv *vault.KeyValueVault) error {
				book, _, err := vault.Get(ctx, kv, vault.AddressBookKey)
				if err != nil {
					return err
				}

				if !book.RemoveAddress(chain, args[0]) {
					return fmt.Errorf("no %s contact with address %s", chain, args[0])
				}

				if len(book.Contacts) == 0 {
					err = vault.Remove(ctx, kv, vault.AddressBookKey)
				} else {
					err = vault.Set(ctx, kv, vault.AddressBookKey, book)
				}
				if err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), "✓ Contact removed\n")
			})
		},
	}

	cmd.Flags().StringVar(&chain, "chain", "bitcoin", "Chain of the address")
	return cmd
}

func newPrefsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Read and change the preferences stored in the vault",
		Long: `Read and change the preferences stored in the vault.

Keys:
  currency          display currency code (e.g. USD)
  hide_balances     true or false
  default_account   account number selected on start`,
	}

	getCmd := &cobra.Command{
		Use:   "get [key]",
		Short: "Show preference value(s)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withKeyValueVault(ctx, func(kv *vault.KeyValueVault) error {
				prefs, _, err := vault.Get(ctx, kv, vault.PreferencesKey)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if len(args) == 0 {
					return writeJSON(out, prefs)
				}

				value, err := preferenceValue(prefs, args[0])
				if err != nil {
					return err
				}
				return writeOutput(out, "%s\n", value)
			})
		},
	}

	setCmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a preference",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withKeyValueVault(ctx, func(kv *vault.KeyValueVault) error {
				prefs, _, err := vault.Get(ctx, kv, vault.PreferencesKey)
				if err != nil {
					return err
				}

				if err := setPreference(&prefs, args[0], args[1]); err != nil {
					return err
				}

				if err := vault.Set(ctx, kv, vault.PreferencesKey, prefs); err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), "✓ Preference updated: %s = %s\n", args[0], args[1])
			})
		},
	}

	cmd.AddCommand(getCmd, setCmd)
	return cmd
}

func preferenceValue(prefs domain.Preferences, key string) (string, error) {
	switch normalizeConfigKey(key) {
	case "currency":
		return prefs.Currency, nil
	case "hide_balances":
		return strconv.FormatBool(prefs.HideBalances), nil
	case "default_account":
		return strconv.Itoa(prefs.DefaultAccount), nil
	default:
		return "", fmt.Errorf("unknown preference: %s", key)
	}
}

func setPreference(prefs *domain.Preferences, key, value string) error {
	switch normalizeConfigKey(key) {
	case "currency":
		prefs.Currency = strings.ToUpper(value)
	case "hide_balances":
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value: %w", err)
		}
		prefs.HideBalances = boolVal
	case "default_account":
		intVal, err := strconv.Atoi(value)
		if err != nil || intVal < 0 {
			return fmt.Errorf("invalid account number: %s", value)
		}
		prefs.DefaultAccount = intVal
	default:
		return fmt.Errorf("unknown preference: %s", key)
	}
	return nil
}

func newItemsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "items",
		Short: "Inspect the encrypted key-value store",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the stored items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withKeyValueVault(ctx, func(kv *vault.KeyValueVault) error {
				names, err := kv.GetAllKeys(ctx)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if len(names) == 0 {
					return writeOutput(out, "No items stored\n")
				}
				sort.Strings(names)
				for _, name := range names {
					if err := writeOutput(out, "%s\n", name); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	var yes bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every stored item (contacts and preferences)",
		Long: `Delete every item in the key-value store. Wallets are not affected.

Example:
  walletvault items clear --yes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withKeyValueVault(ctx, func(kv *vault.KeyValueVault) error {
				ok, err := a.confirm("Delete all contacts and preferences?", yes)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if !ok {
					return writeOutput(out, "Clear cancelled\n")
				}

				if err := kv.Clear(ctx); err != nil {
					return err
				}
				return writeOutput(out, "✓ Items cleared\n")
			})
		},
	}
	clearCmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation prompt")

	cmd.AddCommand(listCmd, clearCmd)
	return cmd
}

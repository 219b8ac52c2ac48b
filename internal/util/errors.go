// Package util maps vault errors onto process exit codes.
package util

import (
	"errors"
	"fmt"
	"os"

	"github.com/walletvault/vault/internal/domain"
	"github.com/walletvault/vault/internal/vault"
)

// Exit codes of the walletvault binary.
const (
	ExitOK           = 0
	ExitError        = 1
	ExitInvalidInput = 2
	ExitVaultLocked  = 3
	ExitIntegrityErr = 4
)

// ExitCodeFor classifies err. Locked and wrong password errors share a code
// so scripts can retry with a password.
func ExitCodeFor(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, vault.ErrVaultLocked),
		errors.Is(err, vault.ErrWrongPassword):
		return ExitVaultLocked
	case errors.Is(err, vault.ErrMigrationFailed),
		errors.Is(err, vault.ErrInconsistentState),
		errors.Is(err, vault.ErrUnsupportedVaultVersion),
		errors.Is(err, vault.ErrNoMigrationAvailable),
		errors.Is(err, domain.ErrUnsupportedSchema):
		return ExitIntegrityErr
	case errors.Is(err, vault.ErrInvalidMnemonic),
		errors.Is(err, vault.ErrInvalidSeed),
		errors.Is(err, vault.ErrInvalidItemKey),
		errors.Is(err, vault.ErrCannotDeletePrimaryWallet),
		errors.Is(err, vault.ErrWalletNotFound),
		errors.Is(err, domain.ErrInvalidWallet):
		return ExitInvalidInput
	default:
		return ExitError
	}
}

// ExitWithCode exits the program with the specified code and message
func ExitWithCode(code int, format string, args ...interface{}) {
	if format != "" {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
	os.Exit(code)
}

// HandleError prints err and exits with its mapped code.
func HandleError(err error, context string) {
	if err == nil {
		return
	}

	code := ExitCodeFor(err)
	msg := fmt.Sprintf("Error: %v", err)
	if context != "" {
		msg = fmt.Sprintf("Error: %s - %v", context, err)
	}
	if code == ExitIntegrityErr {
		msg += "\nRun 'walletvault status' to inspect the vault."
	}
	ExitWithCode(code, "%s", msg)
}

// WrapError wraps an error with additional context
func WrapError(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}

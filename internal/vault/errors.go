package vault

import (
	"errors"
	"fmt"
)

// Error variables for vault operations
var (
	// ErrWrongPassword is returned when a password or hash fails to unwrap the key hierarchy
	ErrWrongPassword = errors.New("wrong password")
	// ErrNotInitialised is returned when the key hierarchy has never been persisted
	ErrNotInitialised = errors.New("vault is not initialised")
	// ErrAlreadyInitialised is returned when initialising over an existing vault
	ErrAlreadyInitialised = errors.New("vault is already initialised")
	// ErrVaultLocked is returned when a tier key is requested without a cached password hash
	ErrVaultLocked = errors.New("vault is locked")
	// ErrNotReady is returned by the store accessors before migrations have run
	ErrNotReady = errors.New("vault is not ready")
	// ErrInvalidMnemonic is returned when a mnemonic fails wordlist or checksum validation
	ErrInvalidMnemonic = errors.New("invalid mnemonic")
	// ErrInvalidSeed is returned when a seed cannot be decoded or has the wrong length
	ErrInvalidSeed = errors.New("invalid seed")
	// ErrCannotDeletePrimaryWallet is returned when deleting the first wallet of the vault
	ErrCannotDeletePrimaryWallet = errors.New("cannot delete the primary wallet")
	// ErrWalletNotFound is returned when a wallet id is unknown
	ErrWalletNotFound = errors.New("wallet not found")
	// ErrInconsistentState is returned when a legacy import finds an incompatible new vault
	ErrInconsistentState = errors.New("inconsistent vault state")
	// ErrMigrationFailed wraps any failure during legacy import or schema migration
	ErrMigrationFailed = errors.New("vault migration failed")
	// ErrNoMigrationAvailable is returned when a version step has no registered migration
	ErrNoMigrationAvailable = errors.New("no migration available")
	// ErrUnsupportedVaultVersion is returned for versions newer than this build supports
	ErrUnsupportedVaultVersion = errors.New("unsupported vault version")
	// ErrInvalidItemKey is returned for a key-value item key outside the registry
	ErrInvalidItemKey = errors.New("invalid key-value item key")
)

// migrationFailed tags err as a migration failure while keeping the cause
// reachable through errors.Is.
func migrationFailed(err error) error {
	if errors.Is(err, ErrMigrationFailed) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrMigrationFailed, err)
}

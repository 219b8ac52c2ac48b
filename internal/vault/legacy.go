package vault

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/tyler-smith/go-bip39"

	"github.com/walletvault/vault/internal/crypto"
	"github.com/walletvault/vault/internal/domain"
)

// legacyImport carries the credential specific steps of an import from the
// single-key vault.
type legacyImport struct {
	// legacyHash opens the legacy entropy blob.
	legacyHash string

	// initialise creates the new key hierarchy.
	initialise func(ctx context.Context) error

	// unlock opens an existing new key hierarchy.
	unlock func(ctx context.Context) error
}

// HasMigrationFromOldSeedVault reports whether a legacy single-key vault is
// waiting to be imported.
func (mv *MasterVault) HasMigrationFromOldSeedVault(ctx context.Context) (bool, error) {
	for _, key := range []string{legacyEncryptedKeyKey, legacyPasswordSaltKey} {
		_, ok, err := mv.stores.Encrypted.Get(ctx, key)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (mv *MasterVault) legacySalt(ctx context.Context) (string, error) {
	salt, ok, err := mv.stores.Encrypted.Get(ctx, legacyPasswordSaltKey)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: legacy salt missing", ErrNotInitialised)
	}
	return salt, nil
}

// MigrateFromOldSeedVault imports the legacy vault with the user's password.
// The new vault gets a fresh salt.
func (mv *MasterVault) MigrateFromOldSeedVault(ctx context.Context, password string) error {
	salt, err := mv.legacySalt(ctx)
	if err != nil {
		return err
	}

	hash, err := mv.crypto.Hash(password, salt)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	return mv.importLegacy(ctx, legacyImport{
		legacyHash: hash,
		initialise: func(ctx context.Context) error {
			return mv.encryption.Initialise(ctx, password)
		},
		unlock: func(ctx context.Context) error {
			return mv.encryption.UnlockVault(ctx, password, false)
		},
	})
}

// MigrateFromOldSeedVaultWithHash imports the legacy vault with a password
// hash left in the session by the legacy client. The new vault reuses the
// legacy salt so the same password keeps working.
func (mv *MasterVault) MigrateFromOldSeedVaultWithHash(ctx context.Context, hash string) error {
	salt, err := mv.legacySalt(ctx)
	if err != nil {
		return err
	}

	return mv.importLegacy(ctx, legacyImport{
		legacyHash: hash,
		initialise: func(ctx context.Context) error {
			return mv.encryption.InitialiseWithHashAndSalt(ctx, hash, salt)
		},
		unlock: func(ctx context.Context) error {
			return mv.encryption.UnlockWithPasswordHash(ctx, hash)
		},
	})
}

func (mv *MasterVault) importLegacy(ctx context.Context, li legacyImport) error {
	mnemonic, err := mv.decryptLegacyMnemonic(ctx, li.legacyHash)
	if err != nil {
		return err
	}

	done, err := mv.checkExistingVault(ctx, li, mnemonic)
	if err != nil {
		return err
	}
	if done {
		log.Infof("Legacy vault already imported, retiring legacy keys")
		return mv.removeLegacyKeys(ctx)
	}

	log.Infof("Importing legacy vault")

	if err := mv.writeImportedVault(ctx, li, mnemonic); err != nil {
		log.Errorf("Legacy import failed, rolling back: %v", err)
		if resetErr := mv.Reset(ctx); resetErr != nil {
			return migrationFailed(errors.Join(err, resetErr))
		}
		return migrationFailed(err)
	}

	if err := mv.removeLegacyKeys(ctx); err != nil {
		return migrationFailed(err)
	}

	log.Infof("Legacy vault imported")
	return nil
}

func (mv *MasterVault) decryptLegacyMnemonic(ctx context.Context, hash string) (string, error) {
	blob, ok, err := mv.stores.Encrypted.Get(ctx, legacyEncryptedKeyKey)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: legacy key missing", ErrNotInitialised)
	}

	plaintext, err := mv.crypto.Decrypt(blob, hash)
	if err != nil {
		return "", ErrWrongPassword
	}

	entropy, err := hex.DecodeString(strings.Trim(strings.TrimSpace(plaintext), `"`))
	if err != nil {
		return "", migrationFailed(fmt.Errorf("legacy entropy is not hex: %w", err))
	}

	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", migrationFailed(fmt.Errorf("legacy entropy: %w", err))
	}
	return mnemonic, nil
}

// checkExistingVault inspects a new vault left by an earlier import. It
// returns done when that vault already holds the legacy wallet as primary.
func (mv *MasterVault) checkExistingVault(ctx context.Context, li legacyImport,
	mnemonic string) (bool, error) {

	initialised, err := mv.encryption.IsInitialised(ctx)
	if err != nil || !initialised {
		return false, err
	}

	if err := li.unlock(ctx); err != nil {
		if errors.Is(err, ErrWrongPassword) {
			return false, fmt.Errorf("%w: existing vault uses a different password",
				ErrInconsistentState)
		}
		return false, err
	}

	primaryID, ok, err := mv.seedVault.GetPrimaryWalletId(ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	secrets, err := mv.seedVault.GetWalletSecrets(ctx, primaryID)
	if err != nil {
		return false, err
	}
	if !crypto.SecureCompare(secrets.Mnemonic, mnemonic) {
		return false, fmt.Errorf("%w: existing primary wallet differs from legacy wallet",
			ErrInconsistentState)
	}
	return true, nil
}

func (mv *MasterVault) writeImportedVault(ctx context.Context, li legacyImport,
	mnemonic string) error {

	if err := mv.Reset(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	if err := li.initialise(ctx); err != nil {
		return fmt.Errorf("initialise: %w", err)
	}

	id, err := mv.seedVault.StoreWalletByMnemonic(ctx, mnemonic, domain.DerivationIndex)
	if err != nil {
		return fmt.Errorf("store wallet: %w", err)
	}

	// Read back through a fresh unlock to prove the hierarchy and the wallet
	// map round trip before the legacy keys go away.
	if err := mv.encryption.LockVault(ctx); err != nil {
		return fmt.Errorf("lock: %w", err)
	}
	if err := li.unlock(ctx); err != nil {
		return fmt.Errorf("unlock: %w", err)
	}

	secrets, err := mv.seedVault.GetWalletSecrets(ctx, id)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	if !crypto.SecureCompare(secrets.Mnemonic, mnemonic) {
		return errors.New("verify: stored mnemonic does not match legacy mnemonic")
	}

	if err := mv.migrator.SetVersion(ctx, LatestVaultVersion()); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	return nil
}

func (mv *MasterVault) removeLegacyKeys(ctx context.Context) error {
	for _, key := range []string{legacyPasswordSaltKey, legacyEncryptedKeyKey} {
		if err := mv.stores.Encrypted.Remove(ctx, key); err != nil {
			return err
		}
	}
	if err := mv.stores.Common.Remove(ctx, legacySeedVaultVersionKey); err != nil {
		return err
	}
	return mv.stores.Session.Remove(ctx, legacyPasswordHashKey)
}

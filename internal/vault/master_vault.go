package vault

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/btcsuite/btcd/chaincfg"
	"golang.org/x/sync/semaphore"
)

// Config holds the collaborators of a MasterVault.
type Config struct {
	Stores

	// Crypto is the cryptography adapter shared by every store.
	Crypto CryptoUtils

	// ChainParams selects the network of derived root keys. Defaults to
	// mainnet.
	ChainParams *chaincfg.Params

	// TargetVersion is the schema version migrations run up to. Zero means
	// LatestVaultVersion.
	TargetVersion int
}

// MasterVault is the entry point of the vault. It owns the lifecycle of the
// key hierarchy and hands out the stores once migrations have run.
type MasterVault struct {
	stores        Stores
	crypto        CryptoUtils
	targetVersion int

	encryption    *EncryptionVault
	seedVault     *SeedVault
	keyValueVault *KeyValueVault
	migrator      *Migrator

	// migrationMutex makes schema migrations run once per process.
	migrationMutex *semaphore.Weighted

	// unlockMutex serialises legacy import followed by unlock.
	unlockMutex *semaphore.Weighted

	migrated atomic.Bool
}

// New creates a MasterVault.
func New(cfg Config) (*MasterVault, error) {
	if err := cfg.Stores.validate(); err != nil {
		return nil, err
	}
	if cfg.Crypto == nil {
		return nil, fmt.Errorf("crypto adapter is required")
	}

	target := cfg.TargetVersion
	if target == 0 {
		target = LatestVaultVersion()
	}

	encryption := NewEncryptionVault(cfg.Session, cfg.Encrypted, cfg.Crypto)

	return &MasterVault{
		stores:         cfg.Stores,
		crypto:         cfg.Crypto,
		targetVersion:  target,
		encryption:     encryption,
		seedVault:      NewSeedVault(encryption, cfg.Encrypted, cfg.ChainParams),
		keyValueVault:  NewKeyValueVault(encryption, cfg.Encrypted),
		migrator:       NewMigrator(encryption, cfg.Crypto, cfg.Encrypted, cfg.Common),
		migrationMutex: newMutex(),
		unlockMutex:    newMutex(),
	}, nil
}

// IsInitialised is true when a legacy vault is waiting for import or the key
// hierarchy exists.
func (mv *MasterVault) IsInitialised(ctx context.Context) (bool, error) {
	legacy, err := mv.HasMigrationFromOldSeedVault(ctx)
	if err != nil || legacy {
		return legacy, err
	}
	return mv.encryption.IsInitialised(ctx)
}

// IsUnlocked reports whether the seed tier is currently usable.
func (mv *MasterVault) IsUnlocked(ctx context.Context) (bool, error) {
	return mv.encryption.IsUnlocked(ctx)
}

// Version returns the persisted schema version.
func (mv *MasterVault) Version(ctx context.Context) (int, bool, error) {
	return mv.migrator.Version(ctx)
}

// Initialise creates a new vault at the latest schema version and leaves it
// unlocked.
func (mv *MasterVault) Initialise(ctx context.Context, password string) error {
	initialised, err := mv.IsInitialised(ctx)
	if err != nil {
		return err
	}
	if initialised {
		return ErrAlreadyInitialised
	}

	if err := mv.encryption.Initialise(ctx, password); err != nil {
		return err
	}

	if err := mv.migrator.SetVersion(ctx, LatestVaultVersion()); err != nil {
		return fmt.Errorf("failed to record vault version: %w", err)
	}

	return mv.runMigrations(ctx)
}

// UnlockVault unlocks the vault, importing a legacy vault first when one is
// present, then runs pending migrations. On an already unlocked vault it
// only checks the password; a mismatch locks the vault when
// lockUnlockedVaultOnFailure is set.
func (mv *MasterVault) UnlockVault(ctx context.Context, password string,
	lockUnlockedVaultOnFailure bool) error {

	if err := mv.unlock(ctx, password, lockUnlockedVaultOnFailure); err != nil {
		return err
	}
	return mv.runMigrations(ctx)
}

func (mv *MasterVault) unlock(ctx context.Context, password string,
	lockUnlockedVaultOnFailure bool) error {

	release, err := acquire(ctx, mv.unlockMutex)
	if err != nil {
		return err
	}
	defer release()

	unlocked, err := mv.encryption.IsUnlocked(ctx)
	if err != nil {
		return err
	}
	if unlocked {
		return mv.encryption.UnlockVault(ctx, password, lockUnlockedVaultOnFailure)
	}

	legacy, err := mv.HasMigrationFromOldSeedVault(ctx)
	if err != nil {
		return err
	}
	if legacy {
		return mv.MigrateFromOldSeedVault(ctx, password)
	}

	return mv.encryption.UnlockVault(ctx, password, false)
}

// LockVault locks the vault. A soft lock only revokes the seed tier.
func (mv *MasterVault) LockVault(ctx context.Context, soft bool) error {
	if soft {
		log.Debugf("Soft locking vault")
		return mv.encryption.SoftLockVault(ctx)
	}

	log.Debugf("Locking vault")
	return mv.encryption.LockVault(ctx)
}

// ChangePassword verifies oldPassword and re-wraps the key hierarchy under
// newPassword.
func (mv *MasterVault) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	if err := mv.UnlockVault(ctx, oldPassword, false); err != nil {
		return err
	}

	// A backup left behind would stay readable with the old password.
	if err := mv.migrator.removeStaleBackups(ctx); err != nil {
		return fmt.Errorf("failed to remove migration backups: %w", err)
	}

	return mv.encryption.ChangePassword(ctx, newPassword)
}

// Reset deletes every persisted vault key and locks the vault. Legacy vault
// keys are kept.
func (mv *MasterVault) Reset(ctx context.Context) error {
	if err := mv.keyValueVault.removeAll(ctx); err != nil {
		return fmt.Errorf("failed to clear key-value vault: %w", err)
	}

	if err := mv.stores.Encrypted.Remove(ctx, seedVaultKey); err != nil {
		return fmt.Errorf("failed to remove seed vault: %w", err)
	}

	if err := mv.encryption.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset encryption vault: %w", err)
	}

	if err := mv.stores.Common.Remove(ctx, vaultVersionKey); err != nil {
		return fmt.Errorf("failed to remove vault version: %w", err)
	}

	if err := mv.migrator.removeBackups(ctx); err != nil {
		return fmt.Errorf("failed to remove migration backups: %w", err)
	}

	if err := mv.seedVault.resetMigrationState(ctx); err != nil {
		return err
	}

	log.Infof("Vault reset")
	return nil
}

// RestoreVault is the startup hook. It imports a legacy vault when the
// legacy client left a password hash in the session, and runs migrations
// when the vault is already unlocked. Otherwise it does nothing.
func (mv *MasterVault) RestoreVault(ctx context.Context) error {
	if err := mv.restoreLegacy(ctx); err != nil {
		return err
	}

	unlocked, err := mv.encryption.IsUnlocked(ctx)
	if err != nil || !unlocked {
		return err
	}
	return mv.runMigrations(ctx)
}

func (mv *MasterVault) restoreLegacy(ctx context.Context) error {
	release, err := acquire(ctx, mv.unlockMutex)
	if err != nil {
		return err
	}
	defer release()

	legacy, err := mv.HasMigrationFromOldSeedVault(ctx)
	if err != nil || !legacy {
		return err
	}

	hash, ok, err := mv.stores.Session.Get(ctx, legacyPasswordHashKey)
	if err != nil || !ok {
		return err
	}
	return mv.MigrateFromOldSeedVaultWithHash(ctx, hash)
}

func (mv *MasterVault) runMigrations(ctx context.Context) error {
	if mv.migrated.Load() {
		return nil
	}

	release, err := acquire(ctx, mv.migrationMutex)
	if err != nil {
		return err
	}
	defer release()

	if mv.migrated.Load() {
		return nil
	}

	if err := mv.migrator.Run(ctx, mv.targetVersion); err != nil {
		return err
	}

	mv.migrated.Store(true)
	return nil
}

// SeedVault returns the wallet store. It fails with ErrNotReady until
// migrations have run in this process.
func (mv *MasterVault) SeedVault() (*SeedVault, error) {
	if !mv.migrated.Load() {
		return nil, ErrNotReady
	}
	return mv.seedVault, nil
}

// KeyValueVault returns the key-value store. It fails with ErrNotReady until
// migrations have run in this process.
func (mv *MasterVault) KeyValueVault() (*KeyValueVault, error) {
	if !mv.migrated.Load() {
		return nil, ErrNotReady
	}
	return mv.keyValueVault, nil
}

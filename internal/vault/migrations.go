package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/walletvault/vault/internal/domain"
	"github.com/walletvault/vault/internal/storage"
)

// migration upgrades the persisted layout from version-1 to version.
type migration struct {
	version     int
	description string

	// backupKeys lists the encrypted store keys the migration may touch.
	backupKeys func(ctx context.Context, m *Migrator) ([]string, error)

	migrate func(ctx context.Context, m *Migrator) error
}

// migrations is the ordered list of schema versions. The vault version
// written by a fresh Initialise is the last entry.
var migrations = []migration{
	{
		version:     2,
		description: "split the encryption key into seed and data tier keys",
		backupKeys:  splitKeysBackupKeys,
		migrate:     splitKeys,
	},
}

// LatestVaultVersion is the highest schema version this build can write.
func LatestVaultVersion() int {
	latest := 1
	for _, m := range migrations {
		if m.version > latest {
			latest = m.version
		}
	}
	return latest
}

func findMigration(version int) (migration, bool) {
	for _, m := range migrations {
		if m.version == version {
			return m, true
		}
	}
	return migration{}, false
}

// Migrator runs schema migrations over the persisted vault.
type Migrator struct {
	encryption *EncryptionVault
	crypto     CryptoUtils
	encrypted  storage.Storage
	common     storage.Storage
}

// NewMigrator creates a Migrator.
func NewMigrator(encryption *EncryptionVault, crypto CryptoUtils,
	encrypted, common storage.Storage) *Migrator {

	return &Migrator{
		encryption: encryption,
		crypto:     crypto,
		encrypted:  encrypted,
		common:     common,
	}
}

// Version returns the persisted vault version. ok is false for a vault that
// has never recorded one.
func (m *Migrator) Version(ctx context.Context) (int, bool, error) {
	raw, ok, err := m.common.Get(ctx, vaultVersionKey)
	if err != nil || !ok {
		return 0, false, err
	}

	version, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("invalid vault version %q: %w", raw, err)
	}
	return version, true, nil
}

// SetVersion persists the vault version.
func (m *Migrator) SetVersion(ctx context.Context, version int) error {
	return m.common.Set(ctx, vaultVersionKey, strconv.Itoa(version))
}

// Run applies every migration from the persisted version up to target. A
// vault without a version is left alone.
func (m *Migrator) Run(ctx context.Context, target int) error {
	latest := LatestVaultVersion()
	if target > latest {
		return migrationFailed(fmt.Errorf("%w: target version %d, latest is %d",
			ErrUnsupportedVaultVersion, target, latest))
	}

	current, ok, err := m.Version(ctx)
	if err != nil {
		return migrationFailed(err)
	}
	if !ok {
		log.Debugf("No vault version recorded, skipping migrations")
		return nil
	}
	if current > latest {
		return migrationFailed(fmt.Errorf("%w: vault is at version %d, latest is %d",
			ErrUnsupportedVaultVersion, current, latest))
	}

	if err := m.removeBackupsUpTo(ctx, current); err != nil {
		return migrationFailed(fmt.Errorf("failed to remove stale backups: %w", err))
	}

	if current >= target {
		log.Debugf("Vault at version %d, no migrations needed", current)
		return nil
	}

	// Check for gaps before touching anything.
	for v := current + 1; v <= target; v++ {
		if _, ok := findMigration(v); !ok {
			return migrationFailed(fmt.Errorf("%w: to version %d",
				ErrNoMigrationAvailable, v))
		}
	}

	for v := current + 1; v <= target; v++ {
		mig, _ := findMigration(v)
		log.Infof("Applying migration #%d: %s", mig.version, mig.description)

		if err := m.apply(ctx, mig); err != nil {
			log.Errorf("Unable to apply migration #%d: %v", mig.version, err)
			return migrationFailed(err)
		}
	}

	return nil
}

func (m *Migrator) apply(ctx context.Context, mig migration) error {
	if err := m.preMigrate(ctx, mig); err != nil {
		return fmt.Errorf("backup before version %d: %w", mig.version, err)
	}

	if err := mig.migrate(ctx, m); err != nil {
		return err
	}

	if err := m.SetVersion(ctx, mig.version); err != nil {
		return fmt.Errorf("failed to record version %d: %w", mig.version, err)
	}

	return m.cleanup(ctx, mig.version)
}

// migrationBackup maps storage keys to their pre-migration values. A nil
// value records a key that did not exist.
type migrationBackup map[string]*string

// preMigrate snapshots the keys a migration touches. A backup left by an
// interrupted run is restored instead, so the migration always starts from
// the pre-migration state.
func (m *Migrator) preMigrate(ctx context.Context, mig migration) error {
	backupKey := migrationBackupKey(mig.version)

	raw, ok, err := m.encrypted.Get(ctx, backupKey)
	if err != nil {
		return err
	}
	if ok {
		log.Warnf("Found backup of interrupted migration #%d, restoring it",
			mig.version)
		return m.restore(ctx, raw)
	}

	keys, err := mig.backupKeys(ctx, m)
	if err != nil {
		return err
	}

	backup := make(migrationBackup, len(keys))
	for _, k := range keys {
		value, ok, err := m.encrypted.Get(ctx, k)
		if err != nil {
			return err
		}
		if ok {
			backup[k] = &value
		} else {
			backup[k] = nil
		}
	}

	encoded, err := json.Marshal(backup)
	if err != nil {
		return err
	}
	return m.encrypted.Set(ctx, backupKey, string(encoded))
}

func (m *Migrator) restore(ctx context.Context, raw string) error {
	var backup migrationBackup
	if err := json.Unmarshal([]byte(raw), &backup); err != nil {
		return fmt.Errorf("corrupt migration backup: %w", err)
	}

	for k, value := range backup {
		var err error
		if value == nil {
			err = m.encrypted.Remove(ctx, k)
		} else {
			err = m.encrypted.Set(ctx, k, *value)
		}
		if err != nil {
			return fmt.Errorf("failed to restore %s: %w", k, err)
		}
	}
	return nil
}

func (m *Migrator) cleanup(ctx context.Context, version int) error {
	return m.encrypted.Remove(ctx, migrationBackupKey(version))
}

// removeStaleBackups deletes the backups of migrations the vault has already
// passed. Such a backup is left only when cleanup failed, and it holds the
// key hierarchy wrapped under the password of that time.
func (m *Migrator) removeStaleBackups(ctx context.Context) error {
	current, ok, err := m.Version(ctx)
	if err != nil || !ok {
		return err
	}
	return m.removeBackupsUpTo(ctx, current)
}

func (m *Migrator) removeBackupsUpTo(ctx context.Context, version int) error {
	for _, mig := range migrations {
		if mig.version > version {
			continue
		}
		if err := m.cleanup(ctx, mig.version); err != nil {
			return err
		}
	}
	return nil
}

// removeBackups deletes every migration backup.
func (m *Migrator) removeBackups(ctx context.Context) error {
	for _, mig := range migrations {
		if err := m.cleanup(ctx, mig.version); err != nil {
			return err
		}
	}
	return nil
}

// singleKeyVaultData is the version 1 key hierarchy: one key for both seed
// and key-value data.
type singleKeyVaultData struct {
	EncryptionKey string `json:"encryptionKey"`
}

// dataKeyDerivationSalt is mixed into the version 1 key to derive the
// version 2 data tier key.
const dataKeyDerivationSalt = "keyValueVault"

func splitKeysBackupKeys(ctx context.Context, m *Migrator) ([]string, error) {
	keys, err := m.keyValueKeys(ctx)
	if err != nil {
		return nil, err
	}
	return append([]string{encryptionVaultKey}, keys...), nil
}

func (m *Migrator) keyValueKeys(ctx context.Context) ([]string, error) {
	return itemStorageKeys(ctx, m.encrypted)
}

// splitKeys keeps the version 1 key as the seed tier key, derives the data
// tier key from it, and re-encrypts every key-value item under the new key.
func splitKeys(ctx context.Context, m *Migrator) error {
	plaintext, err := m.encryption.unwrapRaw(ctx)
	if err != nil {
		return err
	}

	if _, err := domain.DecodeEncryptionVaultData([]byte(plaintext)); err == nil {
		log.Debugf("Key hierarchy already split")
		return nil
	}

	var old singleKeyVaultData
	if err := json.Unmarshal([]byte(plaintext), &old); err != nil {
		return fmt.Errorf("failed to decode version 1 key hierarchy: %w", err)
	}
	if old.EncryptionKey == "" {
		return fmt.Errorf("version 1 key hierarchy has no encryption key")
	}

	dataKey, err := m.crypto.Hash(old.EncryptionKey, dataKeyDerivationSalt)
	if err != nil {
		return fmt.Errorf("failed to derive data key: %w", err)
	}

	keys, err := m.keyValueKeys(ctx)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := m.reencrypt(ctx, k, old.EncryptionKey, dataKey); err != nil {
			return err
		}
	}

	next, err := json.Marshal(domain.EncryptionVaultData{
		SeedEncryptionKey: old.EncryptionKey,
		DataEncryptionKey: dataKey,
	})
	if err != nil {
		return err
	}

	if err := m.encryption.rewrap(ctx, string(next)); err != nil {
		return err
	}

	m.encryption.dataKeys.set(dataKey)
	return m.encryption.session.Remove(ctx, dataKeysSessionKey)
}

func (m *Migrator) reencrypt(ctx context.Context, key, oldKey, newKey string) error {
	ciphertext, ok, err := m.encrypted.Get(ctx, key)
	if err != nil || !ok {
		return err
	}

	plaintext, err := m.crypto.Decrypt(ciphertext, oldKey)
	if err != nil {
		return fmt.Errorf("failed to decrypt %s: %w", key, err)
	}

	ciphertext, err = m.crypto.Encrypt(plaintext, newKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt %s: %w", key, err)
	}

	return m.encrypted.Set(ctx, key, ciphertext)
}

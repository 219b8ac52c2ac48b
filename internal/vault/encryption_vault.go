package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/sync/semaphore"

	"github.com/walletvault/vault/internal/domain"
	"github.com/walletvault/vault/internal/storage"
)

// EncryptionVault owns the password derived key hierarchy. The password hash
// wraps two independent tier keys; all other stores encrypt through it.
type EncryptionVault struct {
	session   storage.Storage
	encrypted storage.Storage
	crypto    CryptoUtils

	// saveMutex guards "check not initialised, then persist".
	saveMutex *semaphore.Weighted

	dataKeys dataKeyCache
}

// NewEncryptionVault creates an EncryptionVault over the session and
// encrypted stores.
func NewEncryptionVault(session, encrypted storage.Storage, crypto CryptoUtils) *EncryptionVault {
	return &EncryptionVault{
		session:   session,
		encrypted: encrypted,
		crypto:    crypto,
		saveMutex: newMutex(),
	}
}

// IsInitialised reports whether a key hierarchy has been persisted.
func (ev *EncryptionVault) IsInitialised(ctx context.Context) (bool, error) {
	_, ok, err := ev.encrypted.Get(ctx, encryptionVaultKey)
	return ok, err
}

// IsUnlocked reports whether the session carries a password hash.
func (ev *EncryptionVault) IsUnlocked(ctx context.Context) (bool, error) {
	_, ok, err := ev.session.Get(ctx, passwordHashKey)
	return ok, err
}

// Initialise generates a fresh key hierarchy wrapped under password and
// leaves the vault unlocked.
func (ev *EncryptionVault) Initialise(ctx context.Context, password string) error {
	salt, err := ev.crypto.GenerateRandomBytes(saltSize)
	if err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}

	hash, err := ev.crypto.Hash(password, salt)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	return ev.InitialiseWithHashAndSalt(ctx, hash, salt)
}

// InitialiseWithHashAndSalt is Initialise for callers that already hold the
// password hash and the salt it was derived with.
func (ev *EncryptionVault) InitialiseWithHashAndSalt(ctx context.Context, hash, salt string) error {
	data, err := ev.generateKeys()
	if err != nil {
		return err
	}

	plaintext, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode key hierarchy: %w", err)
	}

	if err := ev.save(ctx, string(plaintext), hash, salt, false); err != nil {
		return err
	}

	ev.dataKeys.set(data.DataEncryptionKey)
	log.Infof("Initialised encryption vault")

	return nil
}

func (ev *EncryptionVault) generateKeys() (*domain.EncryptionVaultData, error) {
	seedKey, err := ev.crypto.GenerateRandomBytes(keySize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate seed key: %w", err)
	}

	dataKey, err := ev.crypto.GenerateRandomBytes(keySize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate data key: %w", err)
	}

	return &domain.EncryptionVaultData{
		SeedEncryptionKey: seedKey,
		DataEncryptionKey: dataKey,
	}, nil
}

// save wraps plaintext under hash and persists it next to salt in a single
// write, then caches hash in the session.
func (ev *EncryptionVault) save(ctx context.Context, plaintext, hash, salt string, overwrite bool) error {
	release, err := acquire(ctx, ev.saveMutex)
	if err != nil {
		return err
	}
	defer release()

	if !overwrite {
		initialised, err := ev.IsInitialised(ctx)
		if err != nil {
			return err
		}
		if initialised {
			return ErrAlreadyInitialised
		}
	}

	wrapped, err := ev.crypto.Encrypt(plaintext, hash)
	if err != nil {
		return fmt.Errorf("failed to wrap key hierarchy: %w", err)
	}

	record, err := domain.EncryptionVaultRecord{Salt: salt, Data: wrapped}.Encode()
	if err != nil {
		return err
	}

	if err := ev.encrypted.Set(ctx, encryptionVaultKey, record); err != nil {
		return fmt.Errorf("failed to persist key hierarchy: %w", err)
	}

	return ev.session.Set(ctx, passwordHashKey, hash)
}

func (ev *EncryptionVault) loadRecord(ctx context.Context) (*domain.EncryptionVaultRecord, error) {
	raw, ok, err := ev.encrypted.Get(ctx, encryptionVaultKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialised
	}
	return domain.DecodeEncryptionVaultRecord(raw)
}

// UnlockVault derives the hash from the persisted salt and checks it against
// the stored hierarchy. On failure it returns ErrWrongPassword, locking the
// vault first when lockOnFailure is set.
func (ev *EncryptionVault) UnlockVault(ctx context.Context, password string, lockOnFailure bool) error {
	record, err := ev.loadRecord(ctx)
	if err != nil {
		return err
	}

	hash, err := ev.crypto.Hash(password, record.Salt)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	return ev.unlock(ctx, record, hash, lockOnFailure)
}

// UnlockWithPasswordHash unlocks with an already derived password hash.
func (ev *EncryptionVault) UnlockWithPasswordHash(ctx context.Context, hash string) error {
	record, err := ev.loadRecord(ctx)
	if err != nil {
		return err
	}

	return ev.unlock(ctx, record, hash, false)
}

func (ev *EncryptionVault) unlock(ctx context.Context, record *domain.EncryptionVaultRecord,
	hash string, lockOnFailure bool) error {

	plaintext, err := ev.crypto.Decrypt(record.Data, hash)
	if err != nil {
		log.Debugf("Key hierarchy rejected password hash: %v", err)
		if lockOnFailure {
			if lockErr := ev.LockVault(ctx); lockErr != nil {
				return errors.Join(ErrWrongPassword, lockErr)
			}
		}
		return ErrWrongPassword
	}

	if err := ev.session.Set(ctx, passwordHashKey, hash); err != nil {
		return fmt.Errorf("failed to cache password hash: %w", err)
	}

	// A hierarchy still in a pre-split shape is left to the migrations.
	if data, err := domain.DecodeEncryptionVaultData([]byte(plaintext)); err == nil {
		ev.dataKeys.set(data.DataEncryptionKey)
	}

	return nil
}

func (ev *EncryptionVault) passwordHash(ctx context.Context) (string, error) {
	hash, ok, err := ev.session.Get(ctx, passwordHashKey)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrVaultLocked
	}
	return hash, nil
}

// ensureUnlocked fails with ErrVaultLocked when there is no password hash.
func (ev *EncryptionVault) ensureUnlocked(ctx context.Context) error {
	_, err := ev.passwordHash(ctx)
	return err
}

// unwrapRaw returns the decrypted hierarchy document without interpreting it.
func (ev *EncryptionVault) unwrapRaw(ctx context.Context) (string, error) {
	hash, err := ev.passwordHash(ctx)
	if err != nil {
		return "", err
	}

	record, err := ev.loadRecord(ctx)
	if err != nil {
		return "", err
	}

	plaintext, err := ev.crypto.Decrypt(record.Data, hash)
	if err != nil {
		return "", ErrWrongPassword
	}
	return plaintext, nil
}

// rewrap replaces the hierarchy document, keeping the current salt and hash.
func (ev *EncryptionVault) rewrap(ctx context.Context, plaintext string) error {
	hash, err := ev.passwordHash(ctx)
	if err != nil {
		return err
	}

	record, err := ev.loadRecord(ctx)
	if err != nil {
		return err
	}

	return ev.save(ctx, plaintext, hash, record.Salt, true)
}

func (ev *EncryptionVault) tierKey(ctx context.Context, tier Tier) (string, error) {
	if tier == TierData {
		if key, ok := ev.dataKeys.get(); ok {
			return key, nil
		}

		key, ok, err := ev.session.Get(ctx, dataKeysSessionKey)
		if err != nil {
			return "", err
		}
		if ok {
			ev.dataKeys.set(key)
			return key, nil
		}
	}

	plaintext, err := ev.unwrapRaw(ctx)
	if err != nil {
		return "", err
	}

	data, err := domain.DecodeEncryptionVaultData([]byte(plaintext))
	if err != nil {
		return "", err
	}

	switch tier {
	case TierSeed:
		return data.SeedEncryptionKey, nil

	case TierData:
		ev.dataKeys.set(data.DataEncryptionKey)
		if err := ev.session.Set(ctx, dataKeysSessionKey, data.DataEncryptionKey); err != nil {
			return "", fmt.Errorf("failed to cache data key: %w", err)
		}
		return data.DataEncryptionKey, nil

	default:
		return "", fmt.Errorf("unknown tier %q", tier)
	}
}

// Encrypt serialises value to JSON and seals it under the tier key.
func (ev *EncryptionVault) Encrypt(ctx context.Context, value any, tier Tier) (string, error) {
	plaintext, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("failed to encode value: %w", err)
	}

	key, err := ev.tierKey(ctx, tier)
	if err != nil {
		return "", err
	}

	return ev.crypto.Encrypt(string(plaintext), key)
}

// Decrypt opens ciphertext with the tier key and decodes it into out. An
// empty ciphertext reports found=false without touching out.
func (ev *EncryptionVault) Decrypt(ctx context.Context, ciphertext string, tier Tier, out any) (bool, error) {
	if ciphertext == "" {
		return false, nil
	}

	key, err := ev.tierKey(ctx, tier)
	if err != nil {
		return false, err
	}

	plaintext, err := ev.crypto.Decrypt(ciphertext, key)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrWrongPassword, err)
	}

	if err := json.Unmarshal([]byte(plaintext), out); err != nil {
		return false, fmt.Errorf("failed to decode %s tier value: %w", tier, err)
	}

	return true, nil
}

// ChangePassword re-wraps the existing tier keys under a new salt and hash.
// The tier keys themselves do not change, so every blob stays readable.
func (ev *EncryptionVault) ChangePassword(ctx context.Context, newPassword string) error {
	plaintext, err := ev.unwrapRaw(ctx)
	if err != nil {
		return err
	}

	salt, err := ev.crypto.GenerateRandomBytes(saltSize)
	if err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}

	hash, err := ev.crypto.Hash(newPassword, salt)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := ev.save(ctx, plaintext, hash, salt, true); err != nil {
		return err
	}

	log.Infof("Encryption vault password changed")
	return nil
}

// LockVault drops the password hash and the cached data key.
func (ev *EncryptionVault) LockVault(ctx context.Context) error {
	ev.dataKeys.clear()

	if err := ev.session.Remove(ctx, dataKeysSessionKey); err != nil {
		return err
	}
	return ev.session.Remove(ctx, passwordHashKey)
}

// SoftLockVault drops only the password hash. A data key cached earlier keeps
// the data tier usable.
func (ev *EncryptionVault) SoftLockVault(ctx context.Context) error {
	return ev.session.Remove(ctx, passwordHashKey)
}

// Reset deletes the persisted hierarchy and locks the vault.
func (ev *EncryptionVault) Reset(ctx context.Context) error {
	if err := ev.encrypted.Remove(ctx, encryptionVaultKey); err != nil {
		return err
	}
	return ev.LockVault(ctx)
}

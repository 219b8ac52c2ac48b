// Package vault implements the password gated secret store of the wallet: a
// two tier key hierarchy (EncryptionVault), the wallet secret store
// (SeedVault), a typed encrypted key-value store (KeyValueVault), schema
// migrations with restart-safe backups, the legacy vault importer, and the
// MasterVault that ties them together.
package vault

import (
	"context"
	"errors"

	"golang.org/x/sync/semaphore"

	"github.com/walletvault/vault/internal/storage"
)

// CryptoUtils is the injected cryptography. Keys and hashes are opaque
// strings to the vault; Decrypt must fail on a wrong key.
type CryptoUtils interface {
	Encrypt(plaintext, key string) (string, error)
	Decrypt(ciphertext, key string) (string, error)
	Hash(data, salt string) (string, error)
	GenerateRandomBytes(length int) (string, error)
}

// Stores groups the three logical storage instances the vault writes to.
type Stores struct {
	// Session holds the password hash and cached data keys. It must not
	// outlive the process.
	Session storage.Storage

	// Encrypted holds the wrapped key hierarchy and every encrypted blob.
	Encrypted storage.Storage

	// Common holds unencrypted bookkeeping such as the vault version.
	Common storage.Storage
}

func (s Stores) validate() error {
	if s.Session == nil || s.Encrypted == nil || s.Common == nil {
		return errors.New("session, encrypted and common stores are required")
	}
	return nil
}

// Tier selects which key of the hierarchy protects a value.
type Tier string

const (
	// TierSeed guards wallet secrets. It needs the password hash on every use.
	TierSeed Tier = "seed"
	// TierData guards general key-value data. Its key is cached after first use.
	TierData Tier = "data"
)

const (
	keySize  = 32
	saltSize = 16
)

// newMutex returns a FIFO mutex whose acquisition honours context
// cancellation.
func newMutex() *semaphore.Weighted {
	return semaphore.NewWeighted(1)
}

func acquire(ctx context.Context, mu *semaphore.Weighted) (func(), error) {
	if err := mu.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { mu.Release(1) }, nil
}

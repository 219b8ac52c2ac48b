package vault

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/walletvault/vault/internal/crypto"
	"github.com/walletvault/vault/internal/domain"
	"github.com/walletvault/vault/internal/storage"
)

const (
	testPassword = "password"

	// All-zero 128 bit entropy.
	testMnemonic        = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	testMnemonicEntropy = "00000000000000000000000000000000"

	otherMnemonic = "legal winner thank year wave sausage worth useful legal winner thank yellow"

	testSeedHex = "000102030405060708090a0b0c0d0e0f"
)

var errInjected = errors.New("injected storage failure")

func testCrypto() *crypto.AESCrypto {
	return crypto.NewAESCrypto(crypto.Argon2Params{
		Memory:      1024,
		Iterations:  1,
		Parallelism: 1,
	})
}

func newTestStores() Stores {
	return Stores{
		Session:   storage.NewMemoryStorage(),
		Encrypted: storage.NewMemoryStorage(),
		Common:    storage.NewMemoryStorage(),
	}
}

func newTestMasterVault(t *testing.T, stores Stores) *MasterVault {
	t.Helper()

	mv, err := New(Config{Stores: stores, Crypto: testCrypto()})
	require.NoError(t, err)
	return mv
}

// newInitialisedVault returns an unlocked, migrated vault over fresh stores.
func newInitialisedVault(t *testing.T) (*MasterVault, Stores) {
	t.Helper()

	stores := newTestStores()
	mv := newTestMasterVault(t, stores)
	require.NoError(t, mv.Initialise(context.Background(), testPassword))
	return mv, stores
}

// faultyStorage fails Set for one key while armed.
type faultyStorage struct {
	storage.Storage

	failKey string
	armed   atomic.Bool
}

func newFaultyStorage(inner storage.Storage, failKey string) *faultyStorage {
	f := &faultyStorage{Storage: inner, failKey: failKey}
	f.armed.Store(true)
	return f
}

func (f *faultyStorage) Set(ctx context.Context, key, value string) error {
	if key == f.failKey && f.armed.Load() {
		return errInjected
	}
	return f.Storage.Set(ctx, key, value)
}

func (f *faultyStorage) Keys(ctx context.Context) ([]string, error) {
	lister, ok := f.Storage.(storage.KeyLister)
	if !ok {
		return nil, errors.New("inner store cannot list keys")
	}
	return lister.Keys(ctx)
}

// stickyStorage fails Remove for one key while armed.
type stickyStorage struct {
	storage.Storage

	stuckKey string
	armed    atomic.Bool
}

func newStickyStorage(inner storage.Storage, stuckKey string) *stickyStorage {
	s := &stickyStorage{Storage: inner, stuckKey: stuckKey}
	s.armed.Store(true)
	return s
}

func (s *stickyStorage) Remove(ctx context.Context, key string) error {
	if key == s.stuckKey && s.armed.Load() {
		return errInjected
	}
	return s.Storage.Remove(ctx, key)
}

func (s *stickyStorage) Keys(ctx context.Context) ([]string, error) {
	return s.Storage.(storage.KeyLister).Keys(ctx)
}

// opaqueStorage hides the KeyLister capability of the wrapped store.
type opaqueStorage struct {
	storage.Storage
}

// writeLegacyVault persists a single-key vault holding entropyHex and
// returns its password hash.
func writeLegacyVault(t *testing.T, stores Stores, password, entropyHex string) string {
	t.Helper()

	ctx := context.Background()
	c := testCrypto()

	salt := "legacy-salt"
	hash, err := c.Hash(password, salt)
	require.NoError(t, err)

	blob, err := c.Encrypt(entropyHex, hash)
	require.NoError(t, err)

	require.NoError(t, stores.Encrypted.Set(ctx, legacyPasswordSaltKey, salt))
	require.NoError(t, stores.Encrypted.Set(ctx, legacyEncryptedKeyKey, blob))
	require.NoError(t, stores.Common.Set(ctx, legacySeedVaultVersionKey, "1"))

	return hash
}

// writeVersion1Vault persists a version 1 vault with one wallet and stored
// preferences, and returns its single encryption key.
func writeVersion1Vault(t *testing.T, stores Stores, password string,
	prefs domain.Preferences) string {

	t.Helper()

	ctx := context.Background()
	c := testCrypto()

	salt := "version-1-salt"
	hash, err := c.Hash(password, salt)
	require.NoError(t, err)

	key, err := c.GenerateRandomBytes(keySize)
	require.NoError(t, err)

	wrapped, err := c.Encrypt(`{"encryptionKey":"`+key+`"}`, hash)
	require.NoError(t, err)

	record, err := domain.EncryptionVaultRecord{Salt: salt, Data: wrapped}.Encode()
	require.NoError(t, err)
	require.NoError(t, stores.Encrypted.Set(ctx, encryptionVaultKey, record))

	wallets := domain.NewSeedVaultData()
	wallets.Add("wallet-1", domain.NewMnemonicWallet(testMnemonic, domain.DerivationIndex))
	require.NoError(t, stores.Encrypted.Set(ctx, seedVaultKey, sealJSON(t, c, wallets, key)))

	require.NoError(t, stores.Encrypted.Set(ctx, keyValueVaultPrefix+PreferencesKey.Name(),
		sealJSON(t, c, prefs, key)))

	require.NoError(t, stores.Common.Set(ctx, vaultVersionKey, "1"))

	return key
}

func sealJSON(t *testing.T, c *crypto.AESCrypto, v any, key string) string {
	t.Helper()

	raw, err := json.Marshal(v)
	require.NoError(t, err)

	ciphertext, err := c.Encrypt(string(raw), key)
	require.NoError(t, err)
	return ciphertext
}

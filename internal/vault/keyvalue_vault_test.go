package vault

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walletvault/vault/internal/domain"
	"github.com/walletvault/vault/internal/storage"
)

func readyKeyValueVault(t *testing.T) (*MasterVault, *KeyValueVault) {
	t.Helper()

	mv, _ := newInitialisedVault(t)
	kv, err := mv.KeyValueVault()
	require.NoError(t, err)
	return mv, kv
}

func TestKeyValueVaultGetSetRemove(t *testing.T) {
	ctx := context.Background()
	_, kv := readyKeyValueVault(t)

	_, found, err := Get(ctx, kv, PreferencesKey)
	require.NoError(t, err)
	assert.False(t, found)

	prefs := domain.Preferences{Currency: "EUR", HideBalances: true, DefaultAccount: 2}
	require.NoError(t, Set(ctx, kv, PreferencesKey, prefs))

	got, found, err := Get(ctx, kv, PreferencesKey)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, prefs, got)

	book := domain.AddressBook{}
	book.Upsert(domain.Contact{
		Name:      "Alice",
		Address:   "bc1qalice",
		Chain:     "bitcoin",
		CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	require.NoError(t, Set(ctx, kv, AddressBookKey, book))

	keys, err := kv.GetAllKeys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"addressBook", "preferences"}, keys)

	require.NoError(t, Remove(ctx, kv, PreferencesKey))
	_, found, err = Get(ctx, kv, PreferencesKey)
	require.NoError(t, err)
	assert.False(t, found)

	gotBook, found, err := Get(ctx, kv, AddressBookKey)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, book, gotBook)
}

func TestKeyValueVaultStorageLayout(t *testing.T) {
	ctx := context.Background()
	mv, stores := newInitialisedVault(t)
	kv, err := mv.KeyValueVault()
	require.NoError(t, err)

	require.NoError(t, Set(ctx, kv, PreferencesKey, domain.Preferences{Currency: "USD"}))

	raw, ok, err := stores.Encrypted.Get(ctx, "vault::keyValueVault::preferences")
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotContains(t, raw, "USD")
}

func TestKeyValueVaultInvalidKey(t *testing.T) {
	ctx := context.Background()
	_, kv := readyKeyValueVault(t)

	var zero ItemKey[string]
	require.ErrorIs(t, Set(ctx, kv, zero, "value"), ErrInvalidItemKey)
	_, _, err := Get(ctx, kv, zero)
	require.ErrorIs(t, err, ErrInvalidItemKey)
	require.ErrorIs(t, Remove(ctx, kv, zero), ErrInvalidItemKey)
}

func TestKeyValueVaultClear(t *testing.T) {
	ctx := context.Background()
	mv, stores := newInitialisedVault(t)
	kv, err := mv.KeyValueVault()
	require.NoError(t, err)

	require.NoError(t, Set(ctx, kv, PreferencesKey, domain.Preferences{Currency: "USD"}))
	require.NoError(t, Set(ctx, kv, AddressBookKey, domain.AddressBook{}))

	require.NoError(t, kv.Clear(ctx))

	keys, err := kv.GetAllKeys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)

	// Clear only touches the key-value namespace.
	_, ok, err := stores.Encrypted.Get(ctx, encryptionVaultKey)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestKeyValueVaultWithoutKeyListing(t *testing.T) {
	ctx := context.Background()
	stores := newTestStores()
	stores.Encrypted = opaqueStorage{stores.Encrypted}

	mv := newTestMasterVault(t, stores)
	require.NoError(t, mv.Initialise(ctx, testPassword))

	kv, err := mv.KeyValueVault()
	require.NoError(t, err)
	require.NoError(t, Set(ctx, kv, PreferencesKey, domain.Preferences{Currency: "USD"}))

	keys, err := kv.GetAllKeys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)

	require.NoError(t, kv.Clear(ctx))

	// Nothing was removed.
	_, found, err := Get(ctx, kv, PreferencesKey)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestKeyValueVaultSoftLock(t *testing.T) {
	ctx := context.Background()
	mv, kv := readyKeyValueVault(t)

	require.NoError(t, Set(ctx, kv, PreferencesKey, domain.Preferences{Currency: "USD"}))
	require.NoError(t, mv.LockVault(ctx, true))

	prefs, found, err := Get(ctx, kv, PreferencesKey)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "USD", prefs.Currency)
	require.NoError(t, Set(ctx, kv, PreferencesKey, domain.Preferences{Currency: "CHF"}))

	require.NoError(t, mv.LockVault(ctx, false))

	_, _, err = Get(ctx, kv, PreferencesKey)
	require.ErrorIs(t, err, ErrVaultLocked)
	require.ErrorIs(t, Set(ctx, kv, PreferencesKey, domain.Preferences{}), ErrVaultLocked)
}

func TestKeyValueVaultOverBolt(t *testing.T) {
	ctx := context.Background()

	db, err := storage.OpenBolt(t.TempDir() + "/vault.db")
	require.NoError(t, err)
	defer db.Close()

	stores := Stores{
		Session:   storage.NewMemoryStorage(),
		Encrypted: db.Bucket(storage.EncryptedBucket),
		Common:    db.Bucket(storage.CommonBucket),
	}
	mv := newTestMasterVault(t, stores)
	require.NoError(t, mv.Initialise(ctx, testPassword))

	kv, err := mv.KeyValueVault()
	require.NoError(t, err)
	require.NoError(t, Set(ctx, kv, PreferencesKey, domain.Preferences{Currency: "JPY"}))

	keys, err := kv.GetAllKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"preferences"}, keys)
}

package vault

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/walletvault/vault/internal/domain"
	"github.com/walletvault/vault/internal/storage"
)

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{Crypto: testCrypto()})
	require.Error(t, err)

	_, err = New(Config{Stores: newTestStores()})
	require.Error(t, err)
}

func TestMasterVaultInitialise(t *testing.T) {
	ctx := context.Background()
	mv := newTestMasterVault(t, newTestStores())

	initialised, err := mv.IsInitialised(ctx)
	require.NoError(t, err)
	assert.False(t, initialised)

	_, err = mv.SeedVault()
	require.ErrorIs(t, err, ErrNotReady)
	_, err = mv.KeyValueVault()
	require.ErrorIs(t, err, ErrNotReady)

	require.NoError(t, mv.Initialise(ctx, testPassword))

	initialised, err = mv.IsInitialised(ctx)
	require.NoError(t, err)
	assert.True(t, initialised)

	unlocked, err := mv.IsUnlocked(ctx)
	require.NoError(t, err)
	assert.True(t, unlocked)

	_, err = mv.SeedVault()
	require.NoError(t, err)
	_, err = mv.KeyValueVault()
	require.NoError(t, err)

	require.ErrorIs(t, mv.Initialise(ctx, testPassword), ErrAlreadyInitialised)
}

func TestMasterVaultConcurrentInitialise(t *testing.T) {
	ctx := context.Background()
	mv := newTestMasterVault(t, newTestStores())

	var succeeded atomic.Int32
	var g errgroup.Group
	for i := 0; i < 6; i++ {
		g.Go(func() error {
			err := mv.Initialise(ctx, testPassword)
			if err == nil {
				succeeded.Add(1)
				return nil
			}
			assert.ErrorIs(t, err, ErrAlreadyInitialised)
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.EqualValues(t, 1, succeeded.Load())
}

func TestMasterVaultUnlockIdempotence(t *testing.T) {
	ctx := context.Background()
	mv, stores := newInitialisedVault(t)

	before, err := stores.Session.(*storage.MemoryStorage).Keys(ctx)
	require.NoError(t, err)

	require.NoError(t, mv.UnlockVault(ctx, testPassword, false))

	after, err := stores.Session.(*storage.MemoryStorage).Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	require.ErrorIs(t, mv.UnlockVault(ctx, "wrong", false), ErrWrongPassword)
	unlocked, err := mv.IsUnlocked(ctx)
	require.NoError(t, err)
	assert.True(t, unlocked)

	require.ErrorIs(t, mv.UnlockVault(ctx, "wrong", true), ErrWrongPassword)
	unlocked, err = mv.IsUnlocked(ctx)
	require.NoError(t, err)
	assert.False(t, unlocked)

	require.ErrorIs(t, mv.UnlockVault(ctx, "wrong", false), ErrWrongPassword)
	require.NoError(t, mv.UnlockVault(ctx, testPassword, false))
}

func TestMasterVaultSoftLockAsymmetry(t *testing.T) {
	ctx := context.Background()
	mv, _ := newInitialisedVault(t)

	sv, err := mv.SeedVault()
	require.NoError(t, err)
	kv, err := mv.KeyValueVault()
	require.NoError(t, err)

	id, err := sv.StoreWalletByMnemonic(ctx, testMnemonic, domain.DerivationIndex)
	require.NoError(t, err)
	require.NoError(t, Set(ctx, kv, PreferencesKey, domain.Preferences{Currency: "EUR"}))

	require.NoError(t, mv.LockVault(ctx, true))

	_, _, err = Get(ctx, kv, PreferencesKey)
	require.NoError(t, err)
	require.NoError(t, Set(ctx, kv, PreferencesKey, domain.Preferences{Currency: "USD"}))

	_, err = sv.GetWalletRootNode(ctx, id)
	require.ErrorIs(t, err, ErrVaultLocked)
	_, err = sv.GetWalletCount(ctx)
	require.ErrorIs(t, err, ErrVaultLocked)

	require.NoError(t, mv.LockVault(ctx, false))

	_, _, err = Get(ctx, kv, PreferencesKey)
	require.ErrorIs(t, err, ErrVaultLocked)
	_, err = sv.GetWalletCount(ctx)
	require.ErrorIs(t, err, ErrVaultLocked)

	// Locking twice is harmless.
	require.NoError(t, mv.LockVault(ctx, false))
	require.NoError(t, mv.LockVault(ctx, true))
}

func TestMasterVaultChangePassword(t *testing.T) {
	ctx := context.Background()
	mv, _ := newInitialisedVault(t)

	sv, err := mv.SeedVault()
	require.NoError(t, err)
	kv, err := mv.KeyValueVault()
	require.NoError(t, err)

	id, err := sv.StoreWalletByMnemonic(ctx, testMnemonic, domain.DerivationIndex)
	require.NoError(t, err)
	prefs := domain.Preferences{Currency: "EUR", HideBalances: true}
	require.NoError(t, Set(ctx, kv, PreferencesKey, prefs))

	require.ErrorIs(t, mv.ChangePassword(ctx, "wrong", "new password"), ErrWrongPassword)

	require.NoError(t, mv.ChangePassword(ctx, testPassword, "new password"))
	require.NoError(t, mv.LockVault(ctx, false))

	require.ErrorIs(t, mv.UnlockVault(ctx, testPassword, false), ErrWrongPassword)
	require.NoError(t, mv.UnlockVault(ctx, "new password", false))

	secrets, err := sv.GetWalletSecrets(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, testMnemonic, secrets.Mnemonic)

	got, found, err := Get(ctx, kv, PreferencesKey)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, prefs, got)
}

func TestMasterVaultReset(t *testing.T) {
	ctx := context.Background()
	mv, stores := newInitialisedVault(t)

	sv, err := mv.SeedVault()
	require.NoError(t, err)
	kv, err := mv.KeyValueVault()
	require.NoError(t, err)

	_, err = sv.StoreWalletByMnemonic(ctx, testMnemonic, domain.DerivationIndex)
	require.NoError(t, err)
	require.NoError(t, Set(ctx, kv, AddressBookKey, domain.AddressBook{}))

	require.NoError(t, mv.Reset(ctx))

	initialised, err := mv.IsInitialised(ctx)
	require.NoError(t, err)
	assert.False(t, initialised)

	for _, s := range []storage.Storage{stores.Session, stores.Encrypted, stores.Common} {
		keys, err := s.(*storage.MemoryStorage).Keys(ctx)
		require.NoError(t, err)
		assert.Empty(t, keys)
	}

	require.NoError(t, mv.Initialise(ctx, "another password"))
	count, err := sv.GetWalletCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMasterVaultResetWithoutKeyListing(t *testing.T) {
	ctx := context.Background()
	stores := newTestStores()
	raw := stores.Encrypted
	stores.Encrypted = opaqueStorage{raw}

	mv := newTestMasterVault(t, stores)
	require.NoError(t, mv.Initialise(ctx, testPassword))

	kv, err := mv.KeyValueVault()
	require.NoError(t, err)
	require.NoError(t, Set(ctx, kv, PreferencesKey, domain.Preferences{Currency: "USD"}))
	require.NoError(t, Set(ctx, kv, AddressBookKey, domain.AddressBook{}))

	require.NoError(t, mv.Reset(ctx))

	keys, err := raw.(*storage.MemoryStorage).Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)

	// A new vault starts without items instead of undecryptable leftovers.
	require.NoError(t, mv.Initialise(ctx, "another password"))
	_, found, err := Get(ctx, kv, PreferencesKey)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMasterVaultConcurrentUnlock(t *testing.T) {
	ctx := context.Background()
	stores := newTestStores()
	writeVersion1Vault(t, stores, testPassword, domain.Preferences{Currency: "EUR"})

	mv := newTestMasterVault(t, stores)

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			return mv.UnlockVault(ctx, testPassword, false)
		})
	}
	require.NoError(t, g.Wait())

	version, _, err := mv.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, LatestVaultVersion(), version)

	kv, err := mv.KeyValueVault()
	require.NoError(t, err)
	prefs, found, err := Get(ctx, kv, PreferencesKey)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "EUR", prefs.Currency)
}

func TestMasterVaultRestoreRunsMigrations(t *testing.T) {
	ctx := context.Background()
	stores := newTestStores()
	writeVersion1Vault(t, stores, testPassword, domain.Preferences{})

	unlocker := newTestMasterVault(t, stores)
	require.NoError(t, unlocker.encryption.UnlockVault(ctx, testPassword, false))

	// A second instance sharing the unlocked session picks up the pending
	// migration at startup.
	mv := newTestMasterVault(t, stores)
	require.NoError(t, mv.RestoreVault(ctx))

	version, _, err := mv.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, LatestVaultVersion(), version)

	_, err = mv.SeedVault()
	require.NoError(t, err)
}

func TestMasterVaultPersistsAcrossRestart(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir() + "/vault.db"

	open := func() (*storage.BoltDB, *MasterVault) {
		db, err := storage.OpenBolt(path)
		require.NoError(t, err)
		return db, newTestMasterVault(t, Stores{
			Session:   storage.NewMemoryStorage(),
			Encrypted: db.Bucket(storage.EncryptedBucket),
			Common:    db.Bucket(storage.CommonBucket),
		})
	}

	db, mv := open()
	require.NoError(t, mv.Initialise(ctx, testPassword))
	sv, err := mv.SeedVault()
	require.NoError(t, err)
	id, err := sv.StoreWalletByMnemonic(ctx, testMnemonic, domain.DerivationIndex)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, mv = open()
	defer db.Close()

	unlocked, err := mv.IsUnlocked(ctx)
	require.NoError(t, err)
	assert.False(t, unlocked, "the session does not survive a restart")

	require.NoError(t, mv.UnlockVault(ctx, testPassword, false))
	sv, err = mv.SeedVault()
	require.NoError(t, err)

	primary, ok, err := sv.GetPrimaryWalletId(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, primary)
}

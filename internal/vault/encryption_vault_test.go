package vault

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/walletvault/vault/internal/storage"
)

type sample struct {
	Name   string   `json:"name"`
	Count  int      `json:"count"`
	Labels []string `json:"labels"`
}

func newTestEncryptionVault() *EncryptionVault {
	return NewEncryptionVault(storage.NewMemoryStorage(), storage.NewMemoryStorage(), testCrypto())
}

func TestEncryptionVaultInitialise(t *testing.T) {
	ctx := context.Background()
	ev := newTestEncryptionVault()

	initialised, err := ev.IsInitialised(ctx)
	require.NoError(t, err)
	assert.False(t, initialised)

	require.NoError(t, ev.Initialise(ctx, testPassword))

	initialised, err = ev.IsInitialised(ctx)
	require.NoError(t, err)
	assert.True(t, initialised)

	unlocked, err := ev.IsUnlocked(ctx)
	require.NoError(t, err)
	assert.True(t, unlocked)

	err = ev.Initialise(ctx, "another password")
	require.ErrorIs(t, err, ErrAlreadyInitialised)
}

func TestEncryptionVaultConcurrentInitialise(t *testing.T) {
	ctx := context.Background()
	ev := newTestEncryptionVault()

	var succeeded, rejected atomic.Int32
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			err := ev.Initialise(ctx, testPassword)
			switch {
			case err == nil:
				succeeded.Add(1)
			case assert.ErrorIs(t, err, ErrAlreadyInitialised):
				rejected.Add(1)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.EqualValues(t, 1, succeeded.Load())
	assert.EqualValues(t, 7, rejected.Load())
}

func TestEncryptionVaultRoundTrip(t *testing.T) {
	ctx := context.Background()
	ev := newTestEncryptionVault()
	require.NoError(t, ev.Initialise(ctx, testPassword))

	want := sample{Name: "wallet", Count: 3, Labels: []string{"a", "b"}}

	for _, tier := range []Tier{TierSeed, TierData} {
		t.Run(string(tier), func(t *testing.T) {
			ciphertext, err := ev.Encrypt(ctx, want, tier)
			require.NoError(t, err)
			assert.NotContains(t, ciphertext, "wallet")

			var got sample
			found, err := ev.Decrypt(ctx, ciphertext, tier, &got)
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, want, got)
		})
	}
}

func TestEncryptionVaultTiersUseDifferentKeys(t *testing.T) {
	ctx := context.Background()
	ev := newTestEncryptionVault()
	require.NoError(t, ev.Initialise(ctx, testPassword))

	ciphertext, err := ev.Encrypt(ctx, "secret", TierSeed)
	require.NoError(t, err)

	var out string
	_, err = ev.Decrypt(ctx, ciphertext, TierData, &out)
	require.ErrorIs(t, err, ErrWrongPassword)
}

func TestEncryptionVaultDecryptEmpty(t *testing.T) {
	ctx := context.Background()
	ev := newTestEncryptionVault()
	require.NoError(t, ev.Initialise(ctx, testPassword))

	var out sample
	found, err := ev.Decrypt(ctx, "", TierSeed, &out)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Zero(t, out)
}

func TestEncryptionVaultUnlock(t *testing.T) {
	ctx := context.Background()
	ev := newTestEncryptionVault()

	err := ev.UnlockVault(ctx, testPassword, false)
	require.ErrorIs(t, err, ErrNotInitialised)

	require.NoError(t, ev.Initialise(ctx, testPassword))
	ciphertext, err := ev.Encrypt(ctx, "secret", TierSeed)
	require.NoError(t, err)

	require.NoError(t, ev.LockVault(ctx))

	var out string
	_, err = ev.Decrypt(ctx, ciphertext, TierSeed, &out)
	require.ErrorIs(t, err, ErrVaultLocked)
	_, err = ev.Encrypt(ctx, "data", TierData)
	require.ErrorIs(t, err, ErrVaultLocked)

	err = ev.UnlockVault(ctx, "wrong", false)
	require.ErrorIs(t, err, ErrWrongPassword)

	require.NoError(t, ev.UnlockVault(ctx, testPassword, false))

	found, err := ev.Decrypt(ctx, ciphertext, TierSeed, &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "secret", out)
}

func TestEncryptionVaultLockOnFailure(t *testing.T) {
	ctx := context.Background()
	ev := newTestEncryptionVault()
	require.NoError(t, ev.Initialise(ctx, testPassword))

	require.ErrorIs(t, ev.UnlockVault(ctx, "wrong", false), ErrWrongPassword)
	unlocked, err := ev.IsUnlocked(ctx)
	require.NoError(t, err)
	assert.True(t, unlocked, "failed check without lockOnFailure must not lock")

	require.ErrorIs(t, ev.UnlockVault(ctx, "wrong", true), ErrWrongPassword)
	unlocked, err = ev.IsUnlocked(ctx)
	require.NoError(t, err)
	assert.False(t, unlocked)

	_, err = ev.Encrypt(ctx, "data", TierData)
	require.ErrorIs(t, err, ErrVaultLocked)
}

func TestEncryptionVaultSoftLock(t *testing.T) {
	ctx := context.Background()
	ev := newTestEncryptionVault()
	require.NoError(t, ev.Initialise(ctx, testPassword))

	dataBlob, err := ev.Encrypt(ctx, "data", TierData)
	require.NoError(t, err)

	require.NoError(t, ev.SoftLockVault(ctx))

	var out string
	found, err := ev.Decrypt(ctx, dataBlob, TierData, &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "data", out)

	_, err = ev.Encrypt(ctx, "more data", TierData)
	require.NoError(t, err)

	_, err = ev.Encrypt(ctx, "seed", TierSeed)
	require.ErrorIs(t, err, ErrVaultLocked)

	require.NoError(t, ev.LockVault(ctx))
	_, err = ev.Decrypt(ctx, dataBlob, TierData, &out)
	require.ErrorIs(t, err, ErrVaultLocked)
}

func TestEncryptionVaultChangePassword(t *testing.T) {
	ctx := context.Background()
	ev := newTestEncryptionVault()
	require.NoError(t, ev.Initialise(ctx, testPassword))

	seedBlob, err := ev.Encrypt(ctx, "seed", TierSeed)
	require.NoError(t, err)
	dataBlob, err := ev.Encrypt(ctx, "data", TierData)
	require.NoError(t, err)

	require.NoError(t, ev.ChangePassword(ctx, "new password"))
	require.NoError(t, ev.LockVault(ctx))

	require.ErrorIs(t, ev.UnlockVault(ctx, testPassword, false), ErrWrongPassword)
	require.NoError(t, ev.UnlockVault(ctx, "new password", false))

	var out string
	_, err = ev.Decrypt(ctx, seedBlob, TierSeed, &out)
	require.NoError(t, err)
	assert.Equal(t, "seed", out)

	_, err = ev.Decrypt(ctx, dataBlob, TierData, &out)
	require.NoError(t, err)
	assert.Equal(t, "data", out)
}

func TestEncryptionVaultChangePasswordRequiresUnlock(t *testing.T) {
	ctx := context.Background()
	ev := newTestEncryptionVault()
	require.NoError(t, ev.Initialise(ctx, testPassword))
	require.NoError(t, ev.LockVault(ctx))

	require.ErrorIs(t, ev.ChangePassword(ctx, "new password"), ErrVaultLocked)
}

func TestEncryptionVaultUnlockWithPasswordHash(t *testing.T) {
	ctx := context.Background()
	c := testCrypto()
	ev := NewEncryptionVault(storage.NewMemoryStorage(), storage.NewMemoryStorage(), c)

	hash, err := c.Hash(testPassword, "known-salt")
	require.NoError(t, err)
	require.NoError(t, ev.InitialiseWithHashAndSalt(ctx, hash, "known-salt"))
	require.NoError(t, ev.LockVault(ctx))

	wrongHash, err := c.Hash("wrong", "known-salt")
	require.NoError(t, err)
	require.ErrorIs(t, ev.UnlockWithPasswordHash(ctx, wrongHash), ErrWrongPassword)

	require.NoError(t, ev.UnlockWithPasswordHash(ctx, hash))

	// The salt is persisted, so the password unlocks too.
	require.NoError(t, ev.LockVault(ctx))
	require.NoError(t, ev.UnlockVault(ctx, testPassword, false))
}

func TestEncryptionVaultReset(t *testing.T) {
	ctx := context.Background()
	ev := newTestEncryptionVault()
	require.NoError(t, ev.Initialise(ctx, testPassword))

	require.NoError(t, ev.Reset(ctx))

	initialised, err := ev.IsInitialised(ctx)
	require.NoError(t, err)
	assert.False(t, initialised)

	unlocked, err := ev.IsUnlocked(ctx)
	require.NoError(t, err)
	assert.False(t, unlocked)

	require.NoError(t, ev.Initialise(ctx, "fresh"))
}

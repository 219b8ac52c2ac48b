package vault

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/google/uuid"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/sync/semaphore"

	"github.com/walletvault/vault/internal/domain"
	"github.com/walletvault/vault/internal/storage"
)

// RootNode is what chain derivation collaborators receive for a wallet.
type RootNode struct {
	RootKey        *hdkeychain.ExtendedKey
	DerivationType domain.DerivationType
}

// SeedVault stores wallet secrets as one document encrypted under the seed
// tier key.
type SeedVault struct {
	encryption *EncryptionVault
	encrypted  storage.Storage
	params     *chaincfg.Params

	// storeSeedMutex serialises read-modify-write of the wallet map.
	storeSeedMutex *semaphore.Weighted

	// migrateMutex guards the per-process shape upgrade. It is always taken
	// before storeSeedMutex.
	migrateMutex *semaphore.Weighted
	migrated     bool
}

// NewSeedVault creates a SeedVault. A nil params selects mainnet.
func NewSeedVault(encryption *EncryptionVault, encrypted storage.Storage,
	params *chaincfg.Params) *SeedVault {

	if params == nil {
		params = &chaincfg.MainNetParams
	}

	return &SeedVault{
		encryption:     encryption,
		encrypted:      encrypted,
		params:         params,
		storeSeedMutex: newMutex(),
		migrateMutex:   newMutex(),
	}
}

// StoreWalletByMnemonic validates and stores a BIP39 mnemonic, returning the
// new wallet id.
func (sv *SeedVault) StoreWalletByMnemonic(ctx context.Context, mnemonic string,
	derivationType domain.DerivationType) (string, error) {

	mnemonic = NormaliseMnemonic(mnemonic)
	if err := validateMnemonic(mnemonic); err != nil {
		return "", err
	}

	return sv.storeWallet(ctx, domain.NewMnemonicWallet(mnemonic, derivationType))
}

// StoreWalletBySeed stores a raw BIP32 master seed.
func (sv *SeedVault) StoreWalletBySeed(ctx context.Context, seed []byte,
	derivationType domain.DerivationType) (string, error) {

	if err := validateSeed(seed); err != nil {
		return "", err
	}

	return sv.storeWallet(ctx, domain.NewSeedWallet(seed, derivationType))
}

// StoreWalletBySeedString decodes a textual seed with ParseSeed and stores it.
func (sv *SeedVault) StoreWalletBySeedString(ctx context.Context, seed string,
	derivationType domain.DerivationType) (string, error) {

	raw, err := ParseSeed(seed)
	if err != nil {
		return "", err
	}

	return sv.StoreWalletBySeed(ctx, raw, derivationType)
}

func (sv *SeedVault) storeWallet(ctx context.Context, wallet domain.Wallet) (string, error) {
	if err := wallet.Validate(); err != nil {
		return "", err
	}

	id := uuid.NewString()
	err := sv.update(ctx, func(data *domain.SeedVaultData) (bool, error) {
		data.Add(id, wallet)
		return true, nil
	})
	if err != nil {
		return "", err
	}

	log.Debugf("Stored %s wallet %s", wallet.KeyType, id)
	return id, nil
}

// GetWalletSecrets returns the plaintext secrets of a wallet. Use
// GetWalletRootNode for anything that derives keys.
func (sv *SeedVault) GetWalletSecrets(ctx context.Context, id string) (*WalletSecrets, error) {
	wallet, err := sv.wallet(ctx, id)
	if err != nil {
		return nil, err
	}

	seed, err := walletSeed(wallet)
	if err != nil {
		return nil, err
	}

	return newWalletSecrets(wallet.Mnemonic, seed), nil
}

// GetWalletRootNode returns the BIP32 master key of a wallet.
func (sv *SeedVault) GetWalletRootNode(ctx context.Context, id string) (*RootNode, error) {
	wallet, err := sv.wallet(ctx, id)
	if err != nil {
		return nil, err
	}

	seed, err := walletSeed(wallet)
	if err != nil {
		return nil, err
	}

	rootKey, err := hdkeychain.NewMaster(seed, sv.params)
	if err != nil {
		return nil, fmt.Errorf("failed to derive root key: %w", err)
	}

	return &RootNode{
		RootKey:        rootKey,
		DerivationType: wallet.DerivationType,
	}, nil
}

func walletSeed(wallet domain.Wallet) ([]byte, error) {
	switch wallet.KeyType {
	case domain.KeyTypeMnemonic:
		return bip39.NewSeed(wallet.Mnemonic, ""), nil

	case domain.KeyTypeSeed:
		seed, err := base64.StdEncoding.DecodeString(wallet.SeedBase64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
		}
		return seed, nil

	default:
		return nil, fmt.Errorf("%w: unknown key type %q", domain.ErrInvalidWallet,
			wallet.KeyType)
	}
}

// GetWalletCount returns the number of stored wallets.
func (sv *SeedVault) GetWalletCount(ctx context.Context) (int, error) {
	data, err := sv.read(ctx)
	if err != nil {
		return 0, err
	}
	return len(data.Wallets), nil
}

// GetWalletIds returns the wallet ids in the order they were stored.
func (sv *SeedVault) GetWalletIds(ctx context.Context) ([]string, error) {
	data, err := sv.read(ctx)
	if err != nil {
		return nil, err
	}
	return data.IDs(), nil
}

// GetPrimaryWalletId returns the id of the first wallet ever stored, if any.
func (sv *SeedVault) GetPrimaryWalletId(ctx context.Context) (string, bool, error) {
	data, err := sv.read(ctx)
	if err != nil {
		return "", false, err
	}
	return data.PrimaryWalletID, data.PrimaryWalletID != "", nil
}

// DeleteWallet removes a wallet. Deleting an unknown id is a no-op; deleting
// the primary wallet fails with ErrCannotDeletePrimaryWallet and leaves the
// map untouched.
func (sv *SeedVault) DeleteWallet(ctx context.Context, id string) error {
	return sv.update(ctx, func(data *domain.SeedVaultData) (bool, error) {
		if !data.Remove(id) {
			return false, nil
		}

		if _, ok := data.Wallets[data.PrimaryWalletID]; !ok {
			return false, ErrCannotDeletePrimaryWallet
		}

		log.Debugf("Deleted wallet %s", id)
		return true, nil
	})
}

func (sv *SeedVault) wallet(ctx context.Context, id string) (domain.Wallet, error) {
	data, err := sv.read(ctx)
	if err != nil {
		return domain.Wallet{}, err
	}

	wallet, ok := data.Wallets[id]
	if !ok {
		return domain.Wallet{}, fmt.Errorf("%w: %s", ErrWalletNotFound, id)
	}
	return wallet, nil
}

func (sv *SeedVault) read(ctx context.Context) (*domain.SeedVaultData, error) {
	if err := sv.ensureMigrated(ctx); err != nil {
		return nil, err
	}
	return sv.load(ctx)
}

// update runs fn on the decrypted wallet map under storeSeedMutex and writes
// the result back only when fn reports a change.
func (sv *SeedVault) update(ctx context.Context,
	fn func(*domain.SeedVaultData) (bool, error)) error {

	if err := sv.ensureMigrated(ctx); err != nil {
		return err
	}

	release, err := acquire(ctx, sv.storeSeedMutex)
	if err != nil {
		return err
	}
	defer release()

	data, err := sv.load(ctx)
	if err != nil {
		return err
	}

	changed, err := fn(data)
	if err != nil || !changed {
		return err
	}

	return sv.save(ctx, data)
}

func (sv *SeedVault) load(ctx context.Context) (*domain.SeedVaultData, error) {
	if err := sv.encryption.ensureUnlocked(ctx); err != nil {
		return nil, err
	}

	ciphertext, ok, err := sv.encrypted.Get(ctx, seedVaultKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return domain.NewSeedVaultData(), nil
	}

	var raw json.RawMessage
	if _, err := sv.encryption.Decrypt(ctx, ciphertext, TierSeed, &raw); err != nil {
		return nil, err
	}

	return domain.DecodeSeedVaultData(raw)
}

func (sv *SeedVault) save(ctx context.Context, data *domain.SeedVaultData) error {
	ciphertext, err := sv.encryption.Encrypt(ctx, data, TierSeed)
	if err != nil {
		return err
	}

	if err := sv.encrypted.Set(ctx, seedVaultKey, ciphertext); err != nil {
		return fmt.Errorf("failed to persist seed vault: %w", err)
	}
	return nil
}

// ensureMigrated upgrades the decrypted wallet map to the current shape once
// per process.
func (sv *SeedVault) ensureMigrated(ctx context.Context) error {
	release, err := acquire(ctx, sv.migrateMutex)
	if err != nil {
		return err
	}
	defer release()

	if sv.migrated {
		return nil
	}

	releaseStore, err := acquire(ctx, sv.storeSeedMutex)
	if err != nil {
		return err
	}
	defer releaseStore()

	if err := sv.encryption.ensureUnlocked(ctx); err != nil {
		return err
	}

	_, ok, err := sv.encrypted.Get(ctx, seedVaultKey)
	if err != nil {
		return err
	}
	if ok {
		data, err := sv.load(ctx)
		if err != nil {
			return err
		}

		if upgradeSeedVaultData(data) {
			if err := sv.save(ctx, data); err != nil {
				return err
			}
			log.Infof("Upgraded seed vault data to version %d", data.Version)
		}
	}

	sv.migrated = true
	return nil
}

// upgradeSeedVaultData brings data to SeedVaultDataVersion and reports
// whether anything changed.
func upgradeSeedVaultData(data *domain.SeedVaultData) bool {
	if data.Version >= domain.SeedVaultDataVersion {
		return false
	}

	// Version 0 documents differ only in the missing version field.
	data.Version = domain.SeedVaultDataVersion
	return true
}

// resetMigrationState makes the next access re-check the stored shape.
func (sv *SeedVault) resetMigrationState(ctx context.Context) error {
	release, err := acquire(ctx, sv.migrateMutex)
	if err != nil {
		return err
	}
	defer release()

	sv.migrated = false
	return nil
}

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/walletvault/vault/internal/crypto"
	"github.com/walletvault/vault/internal/storage"
	"github.com/walletvault/vault/internal/vault"
)

// kdfParamsKey holds the Argon2id parameters a vault was created with, so a
// later config change cannot lock the user out.
const kdfParamsKey = "cli::kdf"

// Session is one open vault file. The session store lives in memory, so
// every invocation starts locked.
type Session struct {
	db     *storage.BoltDB
	vault  *vault.MasterVault
	common storage.Storage
	params crypto.Argon2Params
	stored bool
}

func chainParams(network string) (*chaincfg.Params, error) {
	switch network {
	case "", "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	default:
		return nil, fmt.Errorf("unknown network %q", network)
	}
}

// openSession opens the vault file named by the config and restores any
// state a previous run left behind.
func (a *app) openSession(ctx context.Context) (*Session, error) {
	net, err := chainParams(a.cfg.Network)
	if err != nil {
		return nil, err
	}

	db, err := storage.OpenBolt(a.cfg.VaultPath)
	if err != nil {
		return nil, err
	}

	s := &Session{
		db:     db,
		common: db.Bucket(storage.CommonBucket),
		params: a.cfg.KDF,
	}

	if err := s.loadParams(ctx); err != nil {
		db.Close()
		return nil, err
	}

	mv, err := vault.New(vault.Config{
		Stores: vault.Stores{
			Session:   storage.NewMemoryStorage(),
			Encrypted: db.Bucket(storage.EncryptedBucket),
			Common:    s.common,
		},
		Crypto:      crypto.NewAESCrypto(s.params),
		ChainParams: net,
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	s.vault = mv

	if err := mv.RestoreVault(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Session) loadParams(ctx context.Context) error {
	raw, ok, err := s.common.Get(ctx, kdfParamsKey)
	if err != nil || !ok {
		return err
	}

	var params crypto.Argon2Params
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return fmt.Errorf("failed to decode stored kdf parameters: %w", err)
	}
	if err := crypto.ValidateArgon2Params(params); err != nil {
		return fmt.Errorf("stored kdf parameters are invalid: %w", err)
	}

	s.params = params
	s.stored = true
	return nil
}

// saveParams records the KDF parameters if the vault has none yet.
func (s *Session) saveParams(ctx context.Context) error {
	if s.stored {
		return nil
	}

	raw, err := json.Marshal(s.params)
	if err != nil {
		return err
	}
	if err := s.common.Set(ctx, kdfParamsKey, string(raw)); err != nil {
		return fmt.Errorf("failed to store kdf parameters: %w", err)
	}

	s.stored = true
	return nil
}

// forgetParams drops the stored KDF parameters after a reset.
func (s *Session) forgetParams(ctx context.Context) error {
	s.stored = false
	return s.common.Remove(ctx, kdfParamsKey)
}

// Close closes the vault file.
func (s *Session) Close() error {
	return s.db.Close()
}

// unlock prompts for the password and unlocks the vault.
func (s *Session) unlock(ctx context.Context, a *app) error {
	initialised, err := s.vault.IsInitialised(ctx)
	if err != nil {
		return err
	}
	if !initialised {
		return fmt.Errorf("no vault at %s, run 'walletvault init' first", a.cfg.VaultPath)
	}

	unlocked, err := s.vault.IsUnlocked(ctx)
	if err != nil || unlocked {
		return err
	}

	password, err := a.password("Enter vault password: ")
	if err != nil {
		return err
	}

	if err := s.vault.UnlockVault(ctx, password, false); err != nil {
		if errors.Is(err, vault.ErrWrongPassword) {
			log.Warnf("Failed unlock attempt on %s", a.cfg.VaultPath)
		}
		return err
	}

	return s.saveParams(ctx)
}

// withSession opens the vault, runs fn and closes the vault again.
func (a *app) withSession(ctx context.Context, fn func(*Session) error) (err error) {
	s, err := a.openSession(ctx)
	if err != nil {
		return err
	}
	defer checkDeferredErr(&err, "close vault", s.Close)

	return fn(s)
}

// withUnlocked is withSession for commands that need the vault unlocked.
func (a *app) withUnlocked(ctx context.Context, fn func(*Session) error) error {
	return a.withSession(ctx, func(s *Session) error {
		if err := s.unlock(ctx, a); err != nil {
			return err
		}
		return fn(s)
	})
}

func (s *Session) seedVault() (*vault.SeedVault, error) {
	return s.vault.SeedVault()
}

func (s *Session) keyValueVault() (*vault.KeyValueVault, error) {
	return s.vault.KeyValueVault()
}

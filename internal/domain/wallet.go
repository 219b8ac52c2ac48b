// Package domain defines the persisted schemas of the vault: the wrapped key
// hierarchy, the wallet map and the typed values kept in the key-value store.
package domain

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// KeyType tags which secret a Wallet carries.
type KeyType string

const (
	KeyTypeMnemonic KeyType = "mnemonic"
	KeyTypeSeed     KeyType = "seed"
)

// DerivationType selects how an integer is mapped onto chain specific
// derivation paths by the derivation collaborators.
type DerivationType string

const (
	DerivationAccount DerivationType = "account"
	DerivationIndex   DerivationType = "index"
)

// SeedVaultDataVersion is the shape version of SeedVaultData written by this
// build.
const SeedVaultDataVersion = 1

var (
	// ErrInvalidWallet is returned when a wallet record does not match either variant
	ErrInvalidWallet = errors.New("invalid wallet record")
	// ErrUnsupportedSchema is returned when a persisted blob was written by a newer build
	ErrUnsupportedSchema = errors.New("unsupported schema version")
)

// ParseDerivationType validates a user supplied derivation type.
func ParseDerivationType(s string) (DerivationType, error) {
	switch DerivationType(s) {
	case DerivationAccount, DerivationIndex:
		return DerivationType(s), nil
	default:
		return "", fmt.Errorf("unknown derivation type %q (want %q or %q)",
			s, DerivationAccount, DerivationIndex)
	}
}

// Wallet is either {keyType: mnemonic, mnemonic} or {keyType: seed,
// seedBase64}, plus the derivation type.
type Wallet struct {
	KeyType        KeyType        `json:"keyType"`
	Mnemonic       string         `json:"mnemonic,omitempty"`
	SeedBase64     string         `json:"seedBase64,omitempty"`
	DerivationType DerivationType `json:"derivationType"`
}

// NewMnemonicWallet builds the mnemonic variant.
func NewMnemonicWallet(mnemonic string, derivationType DerivationType) Wallet {
	return Wallet{
		KeyType:        KeyTypeMnemonic,
		Mnemonic:       mnemonic,
		DerivationType: derivationType,
	}
}

// NewSeedWallet builds the raw seed variant.
func NewSeedWallet(seed []byte, derivationType DerivationType) Wallet {
	return Wallet{
		KeyType:        KeyTypeSeed,
		SeedBase64:     base64.StdEncoding.EncodeToString(seed),
		DerivationType: derivationType,
	}
}

// Validate checks that exactly the fields of the tagged variant are set.
func (w Wallet) Validate() error {
	if _, err := ParseDerivationType(string(w.DerivationType)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidWallet, err)
	}

	switch w.KeyType {
	case KeyTypeMnemonic:
		if w.Mnemonic == "" || w.SeedBase64 != "" {
			return fmt.Errorf("%w: mnemonic wallet must carry only a mnemonic", ErrInvalidWallet)
		}
	case KeyTypeSeed:
		if w.SeedBase64 == "" || w.Mnemonic != "" {
			return fmt.Errorf("%w: seed wallet must carry only a seed", ErrInvalidWallet)
		}
		if _, err := base64.StdEncoding.DecodeString(w.SeedBase64); err != nil {
			return fmt.Errorf("%w: seed is not base64: %v", ErrInvalidWallet, err)
		}
	default:
		return fmt.Errorf("%w: unknown key type %q", ErrInvalidWallet, w.KeyType)
	}

	return nil
}

// UnmarshalJSON rejects records that do not match a variant.
func (w *Wallet) UnmarshalJSON(data []byte) error {
	type plain Wallet
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	if err := Wallet(decoded).Validate(); err != nil {
		return err
	}
	*w = Wallet(decoded)
	return nil
}

// SeedVaultData is the whole wallet map, encrypted as one document under the
// seed tier key.
type SeedVaultData struct {
	Version         int               `json:"version"`
	Wallets         map[string]Wallet `json:"wallets"`
	Order           []string          `json:"order"`
	PrimaryWalletID string            `json:"primaryWalletId,omitempty"`
}

// NewSeedVaultData returns an empty wallet map at the current shape version.
func NewSeedVaultData() *SeedVaultData {
	return &SeedVaultData{
		Version: SeedVaultDataVersion,
		Wallets: make(map[string]Wallet),
	}
}

// DecodeSeedVaultData parses a decrypted wallet map. Documents without an
// insertion order get one rebuilt from the sorted ids.
func DecodeSeedVaultData(raw []byte) (*SeedVaultData, error) {
	var data SeedVaultData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode seed vault data: %w", err)
	}

	if data.Version > SeedVaultDataVersion {
		return nil, fmt.Errorf("%w: seed vault data version %d", ErrUnsupportedSchema, data.Version)
	}

	if data.Wallets == nil {
		data.Wallets = make(map[string]Wallet)
	}

	if len(data.Order) != len(data.Wallets) {
		order := make([]string, 0, len(data.Wallets))
		for id := range data.Wallets {
			order = append(order, id)
		}
		sort.Strings(order)
		data.Order = order
	}

	return &data, nil
}

// Add inserts a wallet, claiming the primary slot if it is the first one.
func (d *SeedVaultData) Add(id string, w Wallet) {
	if _, exists := d.Wallets[id]; !exists {
		d.Order = append(d.Order, id)
	}
	d.Wallets[id] = w
	if d.PrimaryWalletID == "" {
		d.PrimaryWalletID = id
	}
}

// Remove deletes a wallet and reports whether it was present.
func (d *SeedVaultData) Remove(id string) bool {
	if _, exists := d.Wallets[id]; !exists {
		return false
	}
	delete(d.Wallets, id)
	for i, existing := range d.Order {
		if existing == id {
			d.Order = append(d.Order[:i:i], d.Order[i+1:]...)
			break
		}
	}
	return true
}

// IDs returns the wallet ids in insertion order.
func (d *SeedVaultData) IDs() []string {
	ids := make([]string, len(d.Order))
	copy(ids, d.Order)
	return ids
}

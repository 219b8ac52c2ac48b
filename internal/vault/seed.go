package vault

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/tyler-smith/go-bip39"
)

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// NormaliseMnemonic collapses whitespace and case so that equal phrases
// compare byte for byte.
func NormaliseMnemonic(mnemonic string) string {
	return strings.ToLower(strings.Join(strings.Fields(mnemonic), " "))
}

// ParseSeed decodes a textual seed. Encodings are tried in a fixed order:
// hex (optionally 0x prefixed), base58, then base64 in its standard, raw and
// URL alphabets. The decoded seed must have a length usable as a BIP32 master
// seed.
func ParseSeed(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty seed", ErrInvalidSeed)
	}

	seed, ok := decodeSeedString(s)
	if !ok {
		return nil, fmt.Errorf("%w: unrecognised seed encoding", ErrInvalidSeed)
	}

	if err := validateSeed(seed); err != nil {
		return nil, err
	}
	return seed, nil
}

func decodeSeedString(s string) ([]byte, bool) {
	hexStr := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(hexStr)%2 == 0 {
		if seed, err := hex.DecodeString(hexStr); err == nil {
			return seed, true
		}
	}

	if isBase58(s) {
		if seed := base58.Decode(s); len(seed) > 0 {
			return seed, true
		}
	}

	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding,
		base64.URLEncoding, base64.RawURLEncoding,
	} {
		if seed, err := enc.DecodeString(s); err == nil {
			return seed, true
		}
	}

	return nil, false
}

func isBase58(s string) bool {
	for _, r := range s {
		if !strings.ContainsRune(base58Alphabet, r) {
			return false
		}
	}
	return true
}

func validateSeed(seed []byte) error {
	if len(seed) < hdkeychain.MinSeedBytes || len(seed) > hdkeychain.MaxSeedBytes {
		return fmt.Errorf("%w: seed must be %d to %d bytes, got %d", ErrInvalidSeed,
			hdkeychain.MinSeedBytes, hdkeychain.MaxSeedBytes, len(seed))
	}
	return nil
}

func validateMnemonic(mnemonic string) error {
	if !bip39.IsMnemonicValid(mnemonic) {
		return ErrInvalidMnemonic
	}
	return nil
}

// WalletSecrets is the plaintext material of a wallet, meant for reveal
// flows only.
type WalletSecrets struct {
	// Mnemonic is empty for wallets stored from a raw seed.
	Mnemonic   string
	SeedHex    string
	SeedBase58 string
	SeedBase64 string
}

func newWalletSecrets(mnemonic string, seed []byte) *WalletSecrets {
	return &WalletSecrets{
		Mnemonic:   mnemonic,
		SeedHex:    hex.EncodeToString(seed),
		SeedBase58: base58.Encode(seed),
		SeedBase64: base64.StdEncoding.EncodeToString(seed),
	}
}

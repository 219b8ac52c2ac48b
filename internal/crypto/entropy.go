package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/tyler-smith/go-bip39"
)

var (
	errInvalidLength       = errors.New("length must be positive")
	errInvalidEntropyWidth = errors.New("entropy must be 128-256 bits and a multiple of 32")
)

var (
	randSource io.Reader = rand.Reader
	randMux    sync.RWMutex
)

// SetRandomSource sets the random number generator source.
// If r is nil, it resets to the default crypto/rand.Reader.
func SetRandomSource(r io.Reader) {
	randMux.Lock()
	if r == nil {
		randSource = rand.Reader
	} else {
		randSource = r
	}
	randMux.Unlock()
}

// RandomBytes reads length bytes from the configured random source.
func RandomBytes(length int) ([]byte, error) {
	if length <= 0 {
		return nil, errInvalidLength
	}

	randMux.RLock()
	src := randSource
	randMux.RUnlock()

	buf := make([]byte, length)
	if _, err := io.ReadFull(src, buf); err != nil {
		return nil, fmt.Errorf("failed to read random bytes: %w", err)
	}
	return buf, nil
}

// RandomHex returns length random bytes, hex encoded.
func RandomHex(length int) (string, error) {
	buf, err := RandomBytes(length)
	if err != nil {
		return "", err
	}
	defer Zeroize(buf)
	return hex.EncodeToString(buf), nil
}

// NewMnemonic generates a fresh BIP-39 mnemonic carrying bits of entropy.
func NewMnemonic(bits int) (string, error) {
	if bits < 128 || bits > 256 || bits%32 != 0 {
		return "", errInvalidEntropyWidth
	}

	entropy, err := RandomBytes(bits / 8)
	if err != nil {
		return "", err
	}
	defer Zeroize(entropy)

	return bip39.NewMnemonic(entropy)
}

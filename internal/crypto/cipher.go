package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/argon2"
)

const (
	// Crypto constants
	KeySize   = 32 // AES-256 key size
	NonceSize = 12 // GCM nonce size
	TagSize   = 16 // GCM tag size

	// Envelope version
	EnvelopeVersion = 1

	// Default Argon2id parameters (tuned for ~300ms on modern hardware)
	DefaultArgon2Memory      = 64 * 1024 // 64 MB
	DefaultArgon2Iterations  = 3
	DefaultArgon2Parallelism = 4
)

var (
	ErrInvalidEnvelope   = errors.New("invalid envelope format")
	ErrInvalidVersion    = errors.New("unsupported envelope version")
	ErrDecryptionFailed  = errors.New("decryption failed")
	ErrInvalidKeySize    = errors.New("invalid key size")
	ErrInvalidNonceSize  = errors.New("invalid nonce size")
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
)

// Argon2Params holds the key derivation parameters
type Argon2Params struct {
	Memory      uint32 `json:"memory" yaml:"memory"`
	Iterations  uint32 `json:"iterations" yaml:"iterations"`
	Parallelism uint8  `json:"parallelism" yaml:"parallelism"`
}

// DefaultArgon2Params returns the default Argon2id parameters
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Memory:      DefaultArgon2Memory,
		Iterations:  DefaultArgon2Iterations,
		Parallelism: DefaultArgon2Parallelism,
	}
}

// Envelope represents the encrypted data structure
type Envelope struct {
	Version    uint8
	Nonce      []byte
	Ciphertext []byte
	Tag        []byte
}

// AESCrypto is the default crypto adapter used by the vault: Argon2id for
// password hashing and AES-256-GCM for sealing. Keys and hashes travel as hex
// strings, ciphertexts as base64 encoded envelopes.
type AESCrypto struct {
	params Argon2Params
}

// NewAESCrypto creates a new crypto adapter with specified parameters
func NewAESCrypto(params Argon2Params) *AESCrypto {
	return &AESCrypto{
		params: params,
	}
}

// NewDefaultAESCrypto creates a new crypto adapter with default parameters
func NewDefaultAESCrypto() *AESCrypto {
	return NewAESCrypto(DefaultArgon2Params())
}

// Hash derives a 32 byte key from data and salt using Argon2id and returns it
// hex encoded.
func (c *AESCrypto) Hash(data, salt string) (string, error) {
	if salt == "" {
		return "", errors.New("salt must not be empty")
	}

	start := time.Now()
	key := argon2.IDKey(
		[]byte(data),
		[]byte(salt),
		c.params.Iterations,
		c.params.Memory,
		c.params.Parallelism,
		KeySize,
	)
	defer Zeroize(key)

	if duration := time.Since(start); duration > time.Second {
		log.Warnf("Key derivation took %v, consider decreasing parameters", duration)
	} else {
		log.Tracef("Key derivation took %v", duration)
	}

	return hex.EncodeToString(key), nil
}

// GenerateRandomBytes returns length random bytes, hex encoded.
func (c *AESCrypto) GenerateRandomBytes(length int) (string, error) {
	return RandomHex(length)
}

// Encrypt seals plaintext under the hex encoded key.
func (c *AESCrypto) Encrypt(plaintext, key string) (string, error) {
	rawKey, err := decodeKey(key)
	if err != nil {
		return "", err
	}
	defer Zeroize(rawKey)

	envelope, err := Seal([]byte(plaintext), rawKey)
	if err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(EnvelopeToBytes(envelope)), nil
}

// Decrypt opens a ciphertext produced by Encrypt. A wrong key yields
// ErrDecryptionFailed.
func (c *AESCrypto) Decrypt(ciphertext, key string) (string, error) {
	rawKey, err := decodeKey(key)
	if err != nil {
		return "", err
	}
	defer Zeroize(rawKey)

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrInvalidEnvelope
	}

	envelope, err := EnvelopeFromBytes(raw)
	if err != nil {
		return "", err
	}

	plaintext, err := Open(envelope, rawKey)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func decodeKey(key string) ([]byte, error) {
	rawKey, err := hex.DecodeString(key)
	if err != nil || len(rawKey) != KeySize {
		return nil, ErrInvalidKeySize
	}
	return rawKey, nil
}

// GenerateNonce creates a cryptographically secure random nonce
func GenerateNonce() ([]byte, error) {
	nonce, err := RandomBytes(NonceSize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return nonce, nil
}

// Seal encrypts plaintext using AES-256-GCM
func Seal(plaintext []byte, key []byte) (*Envelope, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce, err := GenerateNonce()
	if err != nil {
		return nil, err
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	if len(sealed) < TagSize {
		return nil, ErrInvalidCiphertext
	}

	return &Envelope{
		Version:    EnvelopeVersion,
		Nonce:      nonce,
		Ciphertext: sealed[:len(sealed)-TagSize],
		Tag:        sealed[len(sealed)-TagSize:],
	}, nil
}

// Open decrypts ciphertext using AES-256-GCM
func Open(envelope *Envelope, key []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}

	if envelope.Version != EnvelopeVersion {
		return nil, ErrInvalidVersion
	}

	if len(envelope.Nonce) != NonceSize {
		return nil, ErrInvalidNonceSize
	}

	if len(envelope.Tag) != TagSize {
		return nil, fmt.Errorf("invalid tag size: expected %d, got %d", TagSize, len(envelope.Tag))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	// Reconstruct the sealed data (ciphertext + tag)
	sealedData := make([]byte, len(envelope.Ciphertext)+len(envelope.Tag))
	copy(sealedData, envelope.Ciphertext)
	copy(sealedData[len(envelope.Ciphertext):], envelope.Tag)

	plaintext, err := gcm.Open(nil, envelope.Nonce, sealedData, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	return plaintext, nil
}

// Zeroize securely clears a byte slice
func Zeroize(data []byte) {
	for i := range data {
		data[i] = 0
	}
}

// SecureCompare performs constant-time comparison of two strings
func SecureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ValidateArgon2Params validates Argon2id parameters
func ValidateArgon2Params(params Argon2Params) error {
	if params.Memory < 1024 {
		return errors.New("memory parameter too low (minimum 1024 KB)")
	}
	if params.Memory > 1024*1024 {
		return errors.New("memory parameter too high (maximum 1 GB)")
	}
	if params.Iterations < 1 {
		return errors.New("iterations parameter too low (minimum 1)")
	}
	if params.Iterations > 100 {
		return errors.New("iterations parameter too high (maximum 100)")
	}
	if params.Parallelism < 1 {
		return errors.New("parallelism parameter too low (minimum 1)")
	}
	if params.Parallelism >= 255 {
		return errors.New("parallelism parameter too high (maximum 254)")
	}
	return nil
}

// EnvelopeToBytes serializes an envelope to bytes for storage
func EnvelopeToBytes(envelope *Envelope) []byte {
	// version(1) + nonce_len(4) + nonce + ciphertext_len(4) + ciphertext + tag_len(4) + tag
	buf := make([]byte, 0, 1+4+len(envelope.Nonce)+4+len(envelope.Ciphertext)+4+len(envelope.Tag))

	buf = append(buf, envelope.Version)
	buf = appendField(buf, envelope.Nonce)
	buf = appendField(buf, envelope.Ciphertext)
	buf = appendField(buf, envelope.Tag)

	return buf
}

func appendField(buf, field []byte) []byte {
	var lenBytes [4]byte
	binary.LittleEndian.PutUint32(lenBytes[:], uint32(len(field)))
	buf = append(buf, lenBytes[:]...)
	return append(buf, field...)
}

// EnvelopeFromBytes deserializes an envelope from bytes
func EnvelopeFromBytes(data []byte) (*Envelope, error) {
	if len(data) < 1+4+4+4 { // Minimum size
		return nil, ErrInvalidEnvelope
	}

	version := data[0]
	if version != EnvelopeVersion {
		return nil, ErrInvalidVersion
	}

	offset := 1
	fields := make([][]byte, 3)
	for i := range fields {
		if offset+4 > len(data) {
			return nil, ErrInvalidEnvelope
		}
		fieldLen := int(binary.LittleEndian.Uint32(data[offset : offset+4]))
		offset += 4
		if fieldLen < 0 || offset+fieldLen > len(data) {
			return nil, ErrInvalidEnvelope
		}
		fields[i] = make([]byte, fieldLen)
		copy(fields[i], data[offset:offset+fieldLen])
		offset += fieldLen
	}

	return &Envelope{
		Version:    version,
		Nonce:      fields[0],
		Ciphertext: fields[1],
		Tag:        fields[2],
	}, nil
}

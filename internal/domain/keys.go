package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EncryptionVaultData is the key hierarchy: two independent tier keys,
// wrapped together under the password hash.
type EncryptionVaultData struct {
	SeedEncryptionKey string `json:"seedEncryptionKey"`
	DataEncryptionKey string `json:"dataEncryptionKey"`
}

// Validate ensures both tier keys are present.
func (d EncryptionVaultData) Validate() error {
	if d.SeedEncryptionKey == "" || d.DataEncryptionKey == "" {
		return errors.New("key hierarchy is missing a tier key")
	}
	return nil
}

// DecodeEncryptionVaultData parses an unwrapped key hierarchy.
func DecodeEncryptionVaultData(raw []byte) (*EncryptionVaultData, error) {
	var data EncryptionVaultData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode key hierarchy: %w", err)
	}
	if err := data.Validate(); err != nil {
		return nil, err
	}
	return &data, nil
}

// EncryptionVaultRecord is what lands in persistent storage: the salt in the
// clear next to the wrapped hierarchy, so both are replaced by a single write.
type EncryptionVaultRecord struct {
	Salt string `json:"salt"`
	Data string `json:"data"`
}

// DecodeEncryptionVaultRecord parses the persisted record.
func DecodeEncryptionVaultRecord(raw string) (*EncryptionVaultRecord, error) {
	var record EncryptionVaultRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, fmt.Errorf("failed to decode encryption vault record: %w", err)
	}
	if record.Salt == "" || record.Data == "" {
		return nil, errors.New("encryption vault record is incomplete")
	}
	return &record, nil
}

// Encode serialises the record for storage.
func (r EncryptionVaultRecord) Encode() (string, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to encode encryption vault record: %w", err)
	}
	return string(raw), nil
}

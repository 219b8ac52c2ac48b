package vault

import (
	"context"
	"fmt"
	"strings"

	"github.com/walletvault/vault/internal/domain"
	"github.com/walletvault/vault/internal/storage"
)

// ItemKey names a key-value item and fixes the type stored under it. Item
// keys can only be declared inside this package, which keeps the registry
// closed.
type ItemKey[T any] struct {
	name string
}

// Name returns the storage name of the item.
func (k ItemKey[T]) Name() string {
	return k.name
}

// Registry of key-value items.
var (
	AddressBookKey = ItemKey[domain.AddressBook]{name: "addressBook"}
	PreferencesKey = ItemKey[domain.Preferences]{name: "preferences"}
)

// registeredItems names every registry entry.
var registeredItems = []string{
	AddressBookKey.name,
	PreferencesKey.name,
}

// KeyValueVault stores individually encrypted JSON values under the data
// tier key.
type KeyValueVault struct {
	encryption *EncryptionVault
	encrypted  storage.Storage
}

// NewKeyValueVault creates a KeyValueVault over the encrypted store.
func NewKeyValueVault(encryption *EncryptionVault, encrypted storage.Storage) *KeyValueVault {
	return &KeyValueVault{
		encryption: encryption,
		encrypted:  encrypted,
	}
}

func storageKey(name string) (string, error) {
	if name == "" {
		return "", ErrInvalidItemKey
	}
	return keyValueVaultPrefix + name, nil
}

// Get returns the value stored under key. A key that was never set reports
// found=false.
func Get[T any](ctx context.Context, kv *KeyValueVault, key ItemKey[T]) (T, bool, error) {
	var value T

	skey, err := storageKey(key.name)
	if err != nil {
		return value, false, err
	}

	ciphertext, ok, err := kv.encrypted.Get(ctx, skey)
	if err != nil || !ok {
		return value, false, err
	}

	found, err := kv.encryption.Decrypt(ctx, ciphertext, TierData, &value)
	if err != nil {
		return value, false, fmt.Errorf("failed to read %s: %w", key.name, err)
	}
	return value, found, nil
}

// Set encrypts and stores value under key.
func Set[T any](ctx context.Context, kv *KeyValueVault, key ItemKey[T], value T) error {
	skey, err := storageKey(key.name)
	if err != nil {
		return err
	}

	ciphertext, err := kv.encryption.Encrypt(ctx, value, TierData)
	if err != nil {
		return err
	}

	if err := kv.encrypted.Set(ctx, skey, ciphertext); err != nil {
		return fmt.Errorf("failed to store %s: %w", key.name, err)
	}
	return nil
}

// Remove deletes the value stored under key.
func Remove[T any](ctx context.Context, kv *KeyValueVault, key ItemKey[T]) error {
	skey, err := storageKey(key.name)
	if err != nil {
		return err
	}
	return kv.encrypted.Remove(ctx, skey)
}

// GetAllKeys lists the names of stored items. Without a listing capable
// store it logs a warning and returns nothing.
func (kv *KeyValueVault) GetAllKeys(ctx context.Context) ([]string, error) {
	keys, ok, err := listPrefixed(ctx, kv.encrypted, keyValueVaultPrefix)
	if err != nil {
		return nil, err
	}
	if !ok {
		log.Warnf("Encrypted store cannot list keys, returning no key-value items")
		return nil, nil
	}

	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, strings.TrimPrefix(k, keyValueVaultPrefix))
	}
	return names, nil
}

// Clear deletes every stored item. Without a listing capable store it logs
// a warning and does nothing.
func (kv *KeyValueVault) Clear(ctx context.Context) error {
	keys, ok, err := listPrefixed(ctx, kv.encrypted, keyValueVaultPrefix)
	if err != nil {
		return err
	}
	if !ok {
		log.Warnf("Encrypted store cannot list keys, key-value items not cleared")
		return nil
	}
	return kv.removeKeys(ctx, keys)
}

// removeAll deletes every item, using the item registry when the store
// cannot enumerate its keys.
func (kv *KeyValueVault) removeAll(ctx context.Context) error {
	keys, err := itemStorageKeys(ctx, kv.encrypted)
	if err != nil {
		return err
	}
	return kv.removeKeys(ctx, keys)
}

func (kv *KeyValueVault) removeKeys(ctx context.Context, keys []string) error {
	for _, k := range keys {
		if err := kv.encrypted.Remove(ctx, k); err != nil {
			return fmt.Errorf("failed to remove %s: %w", k, err)
		}
	}
	return nil
}

// itemStorageKeys lists the storage keys of stored items, falling back to
// every registered item when the store cannot enumerate its keys.
func itemStorageKeys(ctx context.Context, s storage.Storage) ([]string, error) {
	keys, ok, err := listPrefixed(ctx, s, keyValueVaultPrefix)
	if err != nil || ok {
		return keys, err
	}

	log.Debugf("Encrypted store cannot list keys, using the item registry")
	keys = make([]string, 0, len(registeredItems))
	for _, name := range registeredItems {
		keys = append(keys, keyValueVaultPrefix+name)
	}
	return keys, nil
}

// listPrefixed returns the storage keys under prefix. ok is false when s
// cannot enumerate its keys.
func listPrefixed(ctx context.Context, s storage.Storage, prefix string) ([]string, bool, error) {
	lister, ok := s.(storage.KeyLister)
	if !ok {
		return nil, false, nil
	}

	all, err := lister.Keys(ctx)
	if err != nil {
		return nil, true, err
	}

	var keys []string
	for _, k := range all {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, true, nil
}

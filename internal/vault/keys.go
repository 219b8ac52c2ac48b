package vault

import "strconv"

// Storage keys of the current vault format.
const (
	encryptionVaultKey    = "vault::encryptionVault"
	seedVaultKey          = "vault::seedVault"
	keyValueVaultPrefix   = "vault::keyValueVault::"
	vaultVersionKey       = "vault::version"
	migrationBackupPrefix = "vault::migrationBackup::"

	// Session only.
	passwordHashKey    = "vault::passwordHash"
	dataKeysSessionKey = "vault::encryptionVault::dataKeys"
)

// Storage keys of the legacy single-key vault. They are not namespaced.
const (
	legacyPasswordHashKey     = "passwordHash"
	legacyPasswordSaltKey     = "passwordSalt"
	legacyEncryptedKeyKey     = "encryptedKey"
	legacySeedVaultVersionKey = "seedVaultVersion"
)

func migrationBackupKey(version int) string {
	return migrationBackupPrefix + strconv.Itoa(version)
}

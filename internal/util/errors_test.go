package util

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/walletvault/vault/internal/domain"
	"github.com/walletvault/vault/internal/vault"
)

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"locked", vault.ErrVaultLocked, ExitVaultLocked},
		{"wrong password wrapped", fmt.Errorf("unlock: %w", vault.ErrWrongPassword), ExitVaultLocked},
		{"migration", fmt.Errorf("%w: %w", vault.ErrMigrationFailed, errors.New("disk full")), ExitIntegrityErr},
		{"unsupported", vault.ErrUnsupportedVaultVersion, ExitIntegrityErr},
		{"inconsistent", vault.ErrInconsistentState, ExitIntegrityErr},
		{"schema", domain.ErrUnsupportedSchema, ExitIntegrityErr},
		{"mnemonic", vault.ErrInvalidMnemonic, ExitInvalidInput},
		{"seed", vault.ErrInvalidSeed, ExitInvalidInput},
		{"primary", vault.ErrCannotDeletePrimaryWallet, ExitInvalidInput},
		{"unknown wallet", vault.ErrWalletNotFound, ExitInvalidInput},
		{"other", errors.New("boom"), ExitError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCodeFor(tt.err))
		})
	}
}

func TestWrapError(t *testing.T) {
	assert.NoError(t, WrapError(nil, "ctx"))

	err := WrapError(vault.ErrVaultLocked, "reveal")
	assert.EqualError(t, err, "reveal: vault is locked")
	assert.ErrorIs(t, err, vault.ErrVaultLocked)
}

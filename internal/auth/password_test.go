package auth

import (
	"testing"

	"ledgerd/internal/apperr"

	"github.com/stretchr/testify/require"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("Secret#123")
	require.NoError(t, err)
	require.NotEqual(t, "Secret#123", hash)
	require.True(t, CheckPassword(hash, "Secret#123"))
	require.False(t, CheckPassword(hash, "secret#123"))
}

func TestValidatePassword(t *testing.T) {
	require.NoError(t, ValidatePassword("Secret#123"))

	weak := []string{
		"",
		"Sh#1",
		"secret#123",
		"Secret#abc",
		"Secret1234",
	}
	for _, password := range weak {
		require.ErrorIs(t, ValidatePassword(password), apperr.ErrWeakCredential, password)
	}
}

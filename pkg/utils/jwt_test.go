package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	SetSecret("test-secret")
	defer SetSecret("secret")

	token, err := GenerateToken("operator-1", []string{"admin"})
	require.NoError(t, err)

	claims, err := ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "operator-1", claims.UserID)
	assert.True(t, claims.HasRole("admin"))
	assert.False(t, claims.HasRole("viewer"))
}

func TestValidateTokenRejectsOtherSecret(t *testing.T) {
	SetSecret("one")
	token, err := GenerateToken("operator-1", nil)
	require.NoError(t, err)

	SetSecret("two")
	defer SetSecret("secret")

	_, err = ValidateToken(token)
	assert.Error(t, err)
}

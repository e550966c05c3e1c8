package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("super-secret")
	require.NoError(t, err)
	assert.NoError(t, CheckPassword(hash, "super-secret"))
	assert.Error(t, CheckPassword(hash, "wrong"))
}

func TestGenerateAndParseToken(t *testing.T) {
	secret := "test-secret"
	claims := Claims{UserID: "u1", Email: "sup@example.com", Role: RoleSupervisor}

	token, err := GenerateToken(secret, claims, time.Hour)
	require.NoError(t, err)

	parsed, err := ParseToken(secret, token)
	require.NoError(t, err)
	assert.Equal(t, claims.UserID, parsed.UserID)
	assert.Equal(t, claims.Email, parsed.Email)
	assert.Equal(t, claims.Role, parsed.Role)
	assert.Equal(t, "u1", parsed.Subject)

	_, err = ParseToken("other-secret", token)
	assert.Error(t, err)
}

func TestExpiredToken(t *testing.T) {
	token, err := GenerateToken("s", Claims{UserID: "u1"}, -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken("s", token)
	assert.Error(t, err)
}

func TestHashToken(t *testing.T) {
	assert.Equal(t, HashToken("abc"), HashToken("abc"))
	assert.NotEqual(t, HashToken("abc"), HashToken("abd"))
	assert.Len(t, HashToken("abc"), 64)
}

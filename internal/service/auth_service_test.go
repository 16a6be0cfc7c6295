package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func initTestAuth(t *testing.T) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	InitAuthConfig("test-signing-key", "admin", string(hash))
}

func TestAuthenticate_IssuesValidToken(t *testing.T) {
	initTestAuth(t)

	token, err := Authenticate("admin", "s3cret")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
	assert.NotNil(t, claims.ExpiresAt)
}

func TestAuthenticate_RejectsBadCredentials(t *testing.T) {
	initTestAuth(t)

	_, err := Authenticate("admin", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = Authenticate("nobody", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticate_RequiresConfiguredHash(t *testing.T) {
	InitAuthConfig("test-signing-key", "admin", "")
	_, err := Authenticate("admin", "s3cret")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestValidateAccessToken_RejectsGarbage(t *testing.T) {
	initTestAuth(t)

	_, err := ValidateAccessToken("not.a.token")
	assert.Error(t, err)

	_, err = ValidateAccessToken("")
	assert.Error(t, err)

	// Token signed under a different key must not verify.
	token, err := Authenticate("admin", "s3cret")
	require.NoError(t, err)

	hash, _ := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	InitAuthConfig("a-different-signing-key", "admin", string(hash))
	_, err = ValidateAccessToken(token)
	assert.Error(t, err)
}

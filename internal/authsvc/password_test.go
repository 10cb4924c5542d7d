// internal/authsvc/password_test.go
package authsvc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, salt, err := hashPassword("Admin@2025!")
	require.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.NotEmpty(t, salt)

	ok, err := verifyPassword("Admin@2025!", salt, hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = verifyPassword("wrong-password", salt, hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPasswordHashIsSalted(t *testing.T) {
	hash1, salt1, err := hashPassword("secret1")
	require.NoError(t, err)
	hash2, salt2, err := hashPassword("secret1")
	require.NoError(t, err)

	assert.NotEqual(t, salt1, salt2)
	assert.NotEqual(t, hash1, hash2)
}

func TestVerifyPasswordRejectsGarbageEncoding(t *testing.T) {
	_, err := verifyPassword("secret1", "not-base64!!", "also-not-base64!!")
	assert.Error(t, err)
}

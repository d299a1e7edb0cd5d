package domain

import (
	"crypto/sha256"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func Test_NormalizeUsername_Trims_Whitespace(t *testing.T) {
	username, err := NormalizeUsername("  alice_01 ")

	require.NoError(t, err)
	require.Equal(t, "alice_01", username)
}

func Test_NormalizeUsername_Returns_ErrInvalidUsername_When_Invalid(t *testing.T) {
	for _, raw := range []string{"", "  ", "ab", "a b c", "alice!", "this-name-is-way-too-long", "émile"} {
		_, err := NormalizeUsername(raw)
		require.ErrorIs(t, err, ErrInvalidUsername, raw)
	}
}

func Test_IssueToken_Stores_Only_Hash(t *testing.T) {
	// Arrange
	hasher := NewTokenHasher(sha256.New)
	userID := uuid.New()

	// Act
	token, accessToken, err := hasher.IssueToken(userID, time.Now())

	// Assert
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.NotEqual(t, token, accessToken.TokenHash)
	require.Equal(t, hasher.Hash(token), accessToken.TokenHash)
	require.Equal(t, userID, accessToken.UserID)
	require.Nil(t, accessToken.RevokedAt)
}

func Test_IssueToken_Returns_Distinct_Tokens(t *testing.T) {
	hasher := NewTokenHasher(sha256.New)

	first, _, err := hasher.IssueToken(uuid.New(), time.Now())
	require.NoError(t, err)
	second, _, err := hasher.IssueToken(uuid.New(), time.Now())
	require.NoError(t, err)

	require.NotEqual(t, first, second)
}

func Test_TokenSession_Validate_Fails_When_Revoked(t *testing.T) {
	now := time.Now()

	require.NoError(t, TokenSession{}.Validate())
	require.ErrorIs(t, TokenSession{RevokedAt: &now}.Validate(), ErrAuthRequired)
}

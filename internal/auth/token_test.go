package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager() *TokenManager {
	return NewTokenManager("test-secret", 15*time.Minute, 720*time.Hour)
}

func TestIssuePair_RoundTrip(t *testing.T) {
	m := newTestManager()

	pair, err := m.IssuePair(42)
	require.NoError(t, err)
	require.NotEmpty(t, pair.Access)
	require.NotEmpty(t, pair.Refresh)

	userID, err := m.VerifyAccess(pair.Access)
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)

	userID, err = m.VerifyRefresh(pair.Refresh)
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)
}

func TestVerify_TokenTypeMismatch(t *testing.T) {
	m := newTestManager()

	pair, err := m.IssuePair(42)
	require.NoError(t, err)

	// An access token must not pass as a refresh token, and vice versa.
	_, err = m.VerifyRefresh(pair.Access)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.VerifyAccess(pair.Refresh)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_WrongSecret(t *testing.T) {
	pair, err := newTestManager().IssuePair(42)
	require.NoError(t, err)

	other := NewTokenManager("other-secret", 15*time.Minute, 720*time.Hour)
	_, err = other.VerifyAccess(pair.Access)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_Expired(t *testing.T) {
	m := NewTokenManager("test-secret", -time.Minute, -time.Minute)

	pair, err := m.IssuePair(42)
	require.NoError(t, err)

	_, err = m.VerifyAccess(pair.Access)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_Garbage(t *testing.T) {
	_, err := newTestManager().VerifyAccess("not-a-token")
	require.ErrorIs(t, err, ErrInvalidToken)
}

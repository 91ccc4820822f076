package jwt

import (
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_RoundTrip(t *testing.T) {
	m, err := NewManager("secret", time.Hour, "wes-io-live")
	require.NoError(t, err)

	token, exp, err := m.GenerateAccessToken("u1", "alice", []string{"user"})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "alice", claims.Identity())
	assert.Equal(t, []string{"user"}, claims.Roles)
}

func TestManager_Rejects(t *testing.T) {
	m, err := NewManager("secret", time.Hour, "wes-io-live")
	require.NoError(t, err)

	other, err := NewManager("other", time.Hour, "wes-io-live")
	require.NoError(t, err)
	foreign, _, err := other.GenerateAccessToken("u1", "alice", nil)
	require.NoError(t, err)
	_, err = m.ValidateToken(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	wrongIssuer, err := NewManager("secret", time.Hour, "someone-else")
	require.NoError(t, err)
	token, _, err := wrongIssuer.GenerateAccessToken("u1", "alice", nil)
	require.NoError(t, err)
	_, err = m.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.ValidateToken("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestManager_Expired(t *testing.T) {
	m, err := NewManager("secret", time.Minute, "")
	require.NoError(t, err)
	m.now = func() time.Time { return time.Now().Add(-time.Hour) }

	token, _, err := m.GenerateAccessToken("u1", "alice", nil)
	require.NoError(t, err)

	m.now = time.Now
	_, err = m.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestManager_RequiresIdentityAndAccessType(t *testing.T) {
	m, err := NewManager("secret", time.Hour, "")
	require.NoError(t, err)

	claims := &Claims{
		RegisteredClaims: gojwt.RegisteredClaims{ExpiresAt: gojwt.NewNumericDate(time.Now().Add(time.Hour))},
		UserID:           "u1",
		Type:             "refresh",
		Username:         "alice",
	}
	token, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = m.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	claims.Type = "access"
	claims.Username = ""
	token, err = gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = m.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Subject stands in for a missing username.
	claims.Subject = "u1"
	token, err = gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	got, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.Identity())
}

func TestNewManager_EmptySecret(t *testing.T) {
	_, err := NewManager("", time.Hour, "")
	assert.ErrorIs(t, err, ErrMissingKey)
}

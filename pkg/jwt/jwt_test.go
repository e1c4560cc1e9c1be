package jwt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_RoundTrip(t *testing.T) {
	m := NewManager("secret", 60)
	token, err := m.GenerateAccessToken("fan-1", "fan", 2)
	require.NoError(t, err)

	claims, err := m.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "fan-1", claims.UserID)
	assert.Equal(t, 2, claims.Level)
}

func TestManager_Rejects(t *testing.T) {
	m := NewManager("secret", 60)
	other := NewManager("other", 60)
	token, err := other.GenerateAccessToken("fan-1", "fan", 2)
	require.NoError(t, err)

	_, err = m.VerifyToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := NewManager("secret", -60)
	token, err = expired.GenerateAccessToken("fan-1", "fan", 2)
	require.NoError(t, err)
	_, err = m.VerifyToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

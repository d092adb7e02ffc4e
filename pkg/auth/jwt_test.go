package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/filebot/config"
	"github.com/shashiranjanraj/filebot/pkg/auth"
)

func TestTokenRoundTrip(t *testing.T) {
	config.Set("JWT_SECRET", "test-secret")

	tok, err := auth.GenerateToken(42, auth.RoleAdmin, time.Hour)
	require.NoError(t, err)

	claims, err := auth.ValidateToken(tok)
	require.NoError(t, err)

	id, err := claims.TelegramID()
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, auth.RoleAdmin, claims.Role)
}

func TestExpiredTokenRejected(t *testing.T) {
	config.Set("JWT_SECRET", "test-secret")

	tok, err := auth.GenerateToken(42, auth.RoleAdmin, -time.Minute)
	require.NoError(t, err)

	_, err = auth.ValidateToken(tok)
	assert.Error(t, err)
}

func TestWrongSecretRejected(t *testing.T) {
	config.Set("JWT_SECRET", "one")
	tok, err := auth.GenerateToken(7, auth.RoleAdmin, time.Hour)
	require.NoError(t, err)

	config.Set("JWT_SECRET", "two")
	_, err = auth.ValidateToken(tok)
	assert.Error(t, err)
}

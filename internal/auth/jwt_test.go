package auth

import (
	"testing"
	"time"

	"github.com/khscrm/api/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	user := &model.User{ID: 42, Email: "worker@khs.com", Role: model.RoleWorker}

	token, err := GenerateAccessToken(user, "secret", time.Now())
	require.NoError(t, err)

	claims, err := ValidateAccessToken(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "worker@khs.com", claims.Email)
	assert.Equal(t, model.RoleWorker, claims.Role)
	assert.NotEmpty(t, claims.ID, "jti should be set")
}

func TestAccessTokenWrongSecret(t *testing.T) {
	user := &model.User{ID: 1, Email: "owner@khs.com", Role: model.RoleOwner}

	token, err := GenerateAccessToken(user, "secret", time.Now())
	require.NoError(t, err)

	_, err = ValidateAccessToken(token, "other-secret")
	assert.Error(t, err)
}

func TestAccessTokenExpired(t *testing.T) {
	user := &model.User{ID: 1, Email: "owner@khs.com", Role: model.RoleOwner}

	// Issued far enough in the past that the token is already expired.
	token, err := GenerateAccessToken(user, "secret", time.Now().Add(-2*AccessTokenExpiry))
	require.NoError(t, err)

	_, err = ValidateAccessToken(token, "secret")
	assert.Error(t, err)
}

func TestGenerateRefreshTokenUnique(t *testing.T) {
	a, err := GenerateRefreshToken()
	require.NoError(t, err)
	b, err := GenerateRefreshToken()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, HashToken(a), HashToken(b))
	assert.Len(t, HashToken(a), 64)
}

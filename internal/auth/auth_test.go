package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func TestVerifyRoundTrip(t *testing.T) {
	v, err := NewJWTVerifier(testSecret)
	require.NoError(t, err)

	token, err := IssueToken(testSecret, 42, "B@X.com", time.Hour)
	require.NoError(t, err)

	id, err := v.Verify(context.Background(), "Bearer "+token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id.UserID)
	assert.Equal(t, "b@x.com", id.Email)
	assert.WithinDuration(t, time.Now().Add(time.Hour), id.ExpiresAt, 5*time.Second)
}

func TestVerifyRejects(t *testing.T) {
	v, err := NewJWTVerifier(testSecret)
	require.NoError(t, err)

	expired, err := IssueToken(testSecret, 1, "a@x.com", -time.Minute)
	require.NoError(t, err)
	wrongKey, err := IssueToken("other-secret", 1, "a@x.com", time.Hour)
	require.NoError(t, err)
	noUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"email": "a@x.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": 1,
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name   string
		bearer string
		want   error
	}{
		{"empty", "", ErrMissingToken},
		{"bearer only", "Bearer ", ErrMissingToken},
		{"garbage", "Bearer not.a.jwt", ErrInvalidToken},
		{"expired", expired, ErrInvalidToken},
		{"wrong key", wrongKey, ErrInvalidToken},
		{"no user id", noUser, ErrInvalidToken},
		{"no expiry", noExp, ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tt.bearer)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNewJWTVerifierRequiresSecret(t *testing.T) {
	_, err := NewJWTVerifier("  ")
	assert.Error(t, err)
}

func TestContextRoundTrip(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := NewContext(context.Background(), Identity{UserID: 9})
	id, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, int64(9), id.UserID)
}

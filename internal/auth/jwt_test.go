package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTService_RoundTrip(t *testing.T) {
	svc := NewJWTService("secret", 1, 10)
	id := Identity{UserID: 7, Username: "org1", IsOrganizer: true}

	token, err := svc.Generate(id)
	require.NoError(t, err)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, id, claims.Identity())
}

func TestJWTService_RejectsForeignSignature(t *testing.T) {
	token, err := NewJWTService("other", 1, 10).Generate(Identity{Username: "u1"})
	require.NoError(t, err)

	_, err = NewJWTService("secret", 1, 10).Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTService_RejectsNoneAlgorithm(t *testing.T) {
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Username: "admin", IsAdmin: true})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewJWTService("secret", 1, 10).Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTService_Expired(t *testing.T) {
	svc := NewJWTService("secret", 1, 10)
	token, err := svc.Generate(Identity{Username: "u1"})
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.Validate(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTService_ResetToken(t *testing.T) {
	svc := NewJWTService("secret", 1, 10)
	reqID := uuid.New()

	token, err := svc.GenerateReset(reqID, "u1")
	require.NoError(t, err)

	gotID, username, err := svc.ValidateReset(token)
	require.NoError(t, err)
	assert.Equal(t, reqID, gotID)
	assert.Equal(t, "u1", username)

	svc.now = func() time.Time { return time.Now().Add(11 * time.Minute) }
	_, _, err = svc.ValidateReset(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTService_SessionTokenIsNotAResetToken(t *testing.T) {
	svc := NewJWTService("secret", 1, 10)
	token, err := svc.Generate(Identity{Username: "u1"})
	require.NoError(t, err)

	_, _, err = svc.ValidateReset(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIdentityContext(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))

	ctx := WithIdentity(context.Background(), Identity{Username: "u1"})
	got := FromContext(ctx)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.Username)
	assert.True(t, got.Owns("u1"))
	assert.False(t, got.Owns("u2"))
	assert.True(t, (&Identity{IsAdmin: true}).Owns("u2"))
}

func TestJWTService_ResetTokenIsNotASessionToken(t *testing.T) {
	svc := NewJWTService("secret", 1, 10)
	token, err := svc.GenerateReset(uuid.New(), "u1")
	require.NoError(t, err)

	_, err = svc.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

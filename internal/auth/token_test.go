package auth

import (
	"testing"
	"time"

	"marketplace-backoffice/internal/apperr"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	svc := NewTokenService("secret", time.Hour)

	token, expiresAt, err := svc.Issue(7, []int64{1, 3})
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	caller, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), caller.ID)
	assert.Equal(t, []int64{1, 3}, caller.RoleIDs)
}

func TestAuthenticate_BearerPrefix(t *testing.T) {
	svc := NewTokenService("secret", time.Hour)
	token, _, err := svc.Issue(7, nil)
	require.NoError(t, err)

	caller, err := svc.Authenticate("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), caller.ID)
	assert.Empty(t, caller.RoleIDs)

	caller, err = svc.Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), caller.ID)
}

func TestVerify_RejectsBadTokensRegardlessOfClaims(t *testing.T) {
	svc := NewTokenService("secret", time.Hour)
	ownerRoles := []int64{1, 2, 3, 4, 5}

	forged, _, err := NewTokenService("other-secret", time.Hour).Issue(1, ownerRoles)
	require.NoError(t, err)

	expiredSvc := NewTokenService("secret", time.Hour)
	expiredSvc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _, err := expiredSvc.Issue(1, ownerRoles)
	require.NoError(t, err)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": 1,
		"roles":   ownerRoles,
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"user_id": 1,
		"roles":   ownerRoles,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := map[string]string{
		"empty":        "",
		"malformed":    "not-a-token",
		"wrong secret": forged,
		"expired":      expired,
		"no expiry":    noExp,
		"alg none":     unsigned,
	}

	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			caller, err := svc.Verify(raw)
			assert.Nil(t, caller)
			assert.True(t, apperr.Is(err, apperr.KindUnauthenticated))
		})
	}
}

func TestAuthenticate_InvalidHeader(t *testing.T) {
	svc := NewTokenService("secret", time.Hour)

	for _, header := range []string{"", "   ", "Token abc", "Basic dXNlcjpwYXNz"} {
		_, err := svc.Authenticate(header)
		assert.True(t, apperr.Is(err, apperr.KindUnauthenticated), header)
	}
}

func TestComparePassword(t *testing.T) {
	hash, err := HashPassword("s3cr3t")
	require.NoError(t, err)

	assert.True(t, ComparePassword(hash, "s3cr3t"))
	assert.False(t, ComparePassword(hash, "wrong"))
	assert.False(t, ComparePassword("", "s3cr3t"))
}

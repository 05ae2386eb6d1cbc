package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestNewTokenManagerRejectsShortSecret(t *testing.T) {
	_, err := NewTokenManager("short", "storefront", time.Hour)
	require.Error(t, err)
}

func TestIssueAndParse(t *testing.T) {
	m, err := NewTokenManager(testSecret, "storefront", time.Hour)
	require.NoError(t, err)

	token, expiresAt, err := m.Issue(domain.User{ID: "u-1", Email: "ada@example.com", IsAdmin: true})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	actor, err := m.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, domain.Actor{UserID: "u-1", Email: "ada@example.com", IsAdmin: true}, actor)
}

func TestParseRejectsInvalidTokens(t *testing.T) {
	m, err := NewTokenManager(testSecret, "storefront", time.Hour)
	require.NoError(t, err)
	other, err := NewTokenManager("ffffffffffffffffffffffffffffffff", "storefront", time.Hour)
	require.NoError(t, err)
	foreignIssuer, err := NewTokenManager(testSecret, "someone-else", time.Hour)
	require.NoError(t, err)

	user := domain.User{ID: "u-1"}
	forged, _, err := other.Issue(user)
	require.NoError(t, err)
	wrongIssuer, _, err := foreignIssuer.Issue(user)
	require.NoError(t, err)

	expiredManager, err := NewTokenManager(testSecret, "storefront", time.Minute)
	require.NoError(t, err)
	expiredManager.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, _, err := expiredManager.Issue(user)
	require.NoError(t, err)

	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1", Issuer: "storefront", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		Admin:            true,
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":        "",
		"garbage":      "not-a-token",
		"wrong secret": forged,
		"wrong issuer": wrongIssuer,
		"expired":      expired,
		"alg none":     noneAlg,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := m.Parse(token)
			assert.ErrorIs(t, err, domain.ErrUnauthenticated)
		})
	}
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer   abc "))
	assert.Empty(t, BearerToken("Basic abc"))
	assert.Empty(t, BearerToken("Bearer"))
	assert.Empty(t, BearerToken(""))
}

package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "this-is-a-test-secret-32-chars-long"

func newIssuer(t *testing.T, ttl time.Duration) *Issuer {
	t.Helper()
	i, err := NewIssuer(Config{Secret: testSecret, Issuer: "readmark", TTL: ttl})
	require.NoError(t, err)
	return i
}

func TestIssuer_RoundTrip(t *testing.T) {
	i := newIssuer(t, time.Hour)
	tok, err := i.Issue("user-123")
	require.NoError(t, err)

	sub, err := i.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-123", sub)
}

func TestIssuer_Rejections(t *testing.T) {
	i := newIssuer(t, time.Hour)

	_, err := i.Issue("  ")
	assert.ErrorIs(t, err, ErrNoSubject)

	expired := newIssuer(t, -time.Minute)
	tok, err := expired.Issue("user-123")
	require.NoError(t, err)
	_, err = i.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	other, err := NewIssuer(Config{Secret: "another-secret-of-sufficient-size", Issuer: "readmark"})
	require.NoError(t, err)
	tok, err = other.Issue("user-123")
	require.NoError(t, err)
	_, err = i.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken, "wrong signature")

	foreign, err := NewIssuer(Config{Secret: testSecret, Issuer: "someone-else"})
	require.NoError(t, err)
	tok, err = foreign.Issue("user-123")
	require.NoError(t, err)
	_, err = i.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken, "wrong issuer")

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "x", Issuer: "readmark"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = i.Verify(none)
	assert.ErrorIs(t, err, ErrInvalidToken, "unsigned tokens are refused")

	_, err = NewIssuer(Config{Secret: "short"})
	assert.Error(t, err)
}

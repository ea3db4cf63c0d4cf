package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{"sub": "42"}
	if !exp.IsZero() {
		claims["exp"] = exp.Unix()
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestStaticProvider(t *testing.T) {
	p := NewStaticProvider("tok")
	token, err := p.Token()
	require.NoError(t, err)
	assert.Equal(t, "tok", token)

	_, err = NewStaticProvider("").Token()
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestEnvProvider(t *testing.T) {
	t.Setenv("TEST_CHAT_TOKEN", "from-env")
	p := NewEnvProvider("TEST_CHAT_TOKEN")

	token, err := p.Token()
	require.NoError(t, err)
	assert.Equal(t, "from-env", token)

	t.Setenv("TEST_CHAT_TOKEN", "")
	_, err = p.Token()
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestExpiryCheckedProviderValidToken(t *testing.T) {
	token := signedToken(t, time.Now().Add(time.Hour))
	p := NewExpiryCheckedProvider(NewStaticProvider(token))

	got, err := p.Token()
	require.NoError(t, err)
	assert.Equal(t, token, got)
}

func TestExpiryCheckedProviderExpiredToken(t *testing.T) {
	token := signedToken(t, time.Now().Add(-time.Hour))
	p := NewExpiryCheckedProvider(NewStaticProvider(token))

	_, err := p.Token()
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestExpiryCheckedProviderNoExpClaim(t *testing.T) {
	token := signedToken(t, time.Time{})
	p := NewExpiryCheckedProvider(NewStaticProvider(token))

	got, err := p.Token()
	require.NoError(t, err)
	assert.Equal(t, token, got)
}

func TestExpiryCheckedProviderOpaqueToken(t *testing.T) {
	p := NewExpiryCheckedProvider(NewStaticProvider("not-a-jwt"))

	got, err := p.Token()
	require.NoError(t, err)
	assert.Equal(t, "not-a-jwt", got)
}

func TestExpiryCheckedProviderPropagatesInnerError(t *testing.T) {
	p := NewExpiryCheckedProvider(NewStaticProvider(""))
	_, err := p.Token()
	assert.ErrorIs(t, err, ErrNoCredential)
}

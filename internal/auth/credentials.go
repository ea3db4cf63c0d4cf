// Package auth supplies bearer credentials to the synchronization core.
package auth

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoCredential is returned when no usable token is available.
var ErrNoCredential = errors.New("no credential available")

// CredentialProvider supplies a bearer token on demand.
type CredentialProvider interface {
	Token() (string, error)
}

// StaticProvider returns a fixed token.
type StaticProvider struct {
	token string
}

func NewStaticProvider(token string) *StaticProvider {
	return &StaticProvider{token: token}
}

func (p *StaticProvider) Token() (string, error) {
	if p.token == "" {
		return "", ErrNoCredential
	}
	return p.token, nil
}

// EnvProvider reads the token from an environment variable on every call,
// so a refreshed token is picked up without rebuilding the provider.
type EnvProvider struct {
	key string
}

func NewEnvProvider(key string) *EnvProvider {
	return &EnvProvider{key: key}
}

func (p *EnvProvider) Token() (string, error) {
	token := os.Getenv(p.key)
	if token == "" {
		return "", fmt.Errorf("%w: %s unset", ErrNoCredential, p.key)
	}
	return token, nil
}

// ExpiryCheckedProvider wraps another provider and rejects JWTs whose exp
// claim has passed, so a stale token fails locally instead of being
// bounced by the handshake. Signature validation stays the backend's job;
// the claim is read unverified. Opaque non-JWT tokens pass through.
type ExpiryCheckedProvider struct {
	inner CredentialProvider
	now   func() time.Time
}

func NewExpiryCheckedProvider(inner CredentialProvider) *ExpiryCheckedProvider {
	return &ExpiryCheckedProvider{inner: inner, now: time.Now}
}

func (p *ExpiryCheckedProvider) Token() (string, error) {
	token, err := p.inner.Token()
	if err != nil {
		return "", err
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return token, nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return token, nil
	}
	if exp.Before(p.now()) {
		return "", fmt.Errorf("%w: token expired at %s", ErrNoCredential, exp.Format(time.RFC3339))
	}
	return token, nil
}

package auth

import (
	"errors"
	"fmt"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"

	"github.com/custodia-labs/formsync/internal/core/domain"
	"github.com/custodia-labs/formsync/internal/core/ports/driven"
)

// Ensure Authority implements both token interfaces.
var (
	_ driven.TokenVerifier = (*Authority)(nil)
	_ driven.TokenIssuer   = (*Authority)(nil)
)

const issuer = "formsync"

// minSecretLength rejects secrets too short for HS256.
const minSecretLength = 16

type claims struct {
	Name string `json:"name,omitempty"`
	gojwt.RegisteredClaims
}

// Authority issues and verifies HS256 tokens with one shared secret.
type Authority struct {
	secret []byte
	now    func() time.Time
}

// NewAuthority creates an authority for secret.
func NewAuthority(secret string) (*Authority, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("%w: jwt secret must be at least %d bytes", domain.ErrInvalidInput, minSecretLength)
	}
	return &Authority{secret: []byte(secret), now: time.Now}, nil
}

// Issue signs a token for identity. ttl <= 0 issues a token without expiry.
func (a *Authority) Issue(identity domain.Identity, ttl time.Duration) (string, error) {
	if identity.UserID == "" {
		return "", fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	now := a.now()
	c := claims{
		Name: identity.DisplayName,
		RegisteredClaims: gojwt.RegisteredClaims{
			Issuer:   issuer,
			Subject:  identity.UserID,
			IssuedAt: gojwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		c.ExpiresAt = gojwt.NewNumericDate(now.Add(ttl))
	}
	return gojwt.NewWithClaims(gojwt.SigningMethodHS256, c).SignedString(a.secret)
}

// Verify checks the signature, issuer and expiry and returns the identity.
func (a *Authority) Verify(token string) (*domain.Identity, error) {
	if token == "" {
		return nil, domain.ErrAuthRequired
	}

	var c claims
	parser := gojwt.NewParser(
		gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}),
		gojwt.WithIssuer(issuer),
		gojwt.WithTimeFunc(a.now),
	)
	_, err := parser.ParseWithClaims(token, &c, func(*gojwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		if errors.Is(err, gojwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: token expired", domain.ErrAuthInvalid)
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrAuthInvalid, err)
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", domain.ErrAuthInvalid)
	}

	name := c.Name
	if name == "" {
		name = c.Subject
	}
	return &domain.Identity{UserID: c.Subject, DisplayName: name}, nil
}

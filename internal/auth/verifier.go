// Package auth validates session tokens minted by the external identity
// provider. Sign-in and sign-out live entirely on the provider's side; this
// service only consumes the resulting token and treats the identity inside
// it as read-only input.
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for tokens that fail signature or claim checks.
var ErrInvalidToken = errors.New("invalid session token")

// Identity is the profile the identity provider asserts for a session.
// Subject is the stable account key; Name and Email are denormalized into
// the ledger record opportunistically on each sync.
type Identity struct {
	Subject string
	Name    string
	Email   string
}

type sessionClaims struct {
	jwt.RegisteredClaims
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Verifier checks HS256 session tokens against the shared secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates a session token and returns the identity it
// asserts.
func (v *Verifier) Verify(token string) (Identity, error) {
	tok, err := jwt.ParseWithClaims(token, &sessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	c, ok := tok.Claims.(*sessionClaims)
	if !ok || !tok.Valid || c.Subject == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{Subject: c.Subject, Name: c.Name, Email: c.Email}, nil
}

// Package auth issues and verifies the service's bearer tokens and hashes
// account passwords.
//
// Tokens are HS256 JWTs carrying the user's id and email. They are not
// persisted: a token stays valid until it expires, the signing secret is
// rotated, or the user it names is deactivated.
package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token verification failures. Every Parse error wraps exactly one of these.
var (
	ErrMalformed        = errors.New("token malformed")
	ErrExpired          = errors.New("token expired")
	ErrInvalidSignature = errors.New("token signature invalid")
)

// Claims is the signed payload of a bearer token.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// Tokens issues and parses bearer tokens with a shared HMAC secret and a
// fixed validity window.
type Tokens struct {
	secret []byte
	expiry time.Duration

	// Now is the clock used for iat/exp. Tests may replace it.
	Now func() time.Time
}

// NewTokens returns a Tokens signer. expiry is measured from issuance.
func NewTokens(secret string, expiry time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), expiry: expiry, Now: time.Now}
}

// Expiry reports the validity window applied by Issue.
func (t *Tokens) Expiry() time.Duration { return t.expiry }

// Issue signs a token for the given user. The returned time is the token's
// exp claim.
func (t *Tokens) Issue(userID, email string) (string, time.Time, error) {
	now := t.Now()
	iat := jwt.NewNumericDate(now)
	exp := jwt.NewNumericDate(now.Add(t.expiry))

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  iat,
			ExpiresAt: exp,
		},
	})
	signed, err := tok.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp.Time, nil
}

// Parse verifies the signature and expiry of raw and returns its claims.
func (t *Tokens) Parse(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrMalformed
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.Now),
	)
	if err != nil {
		return nil, classify(err)
	}
	if claims.UserID == "" {
		return nil, ErrMalformed
	}
	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrInvalidSignature
	default:
		// missing exp, bad nbf and other claim problems
		return ErrMalformed
	}
}

// ABOUTME: Route token issuance and verification using HS256 signed JWTs
// ABOUTME: A token binds exactly one route and an expiry under the server secret

package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

// MinSecretLength is the minimum accepted length of the server secret in bytes.
const MinSecretLength = 32

// hkdfInfo labels the signing key derived from the configured secret.
const hkdfInfo = "passgate route token v1"

// Token errors
var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrExpiredToken  = errors.New("token has expired")
	ErrRouteMismatch = errors.New("token is not valid for this route")
	ErrWeakSecret    = fmt.Errorf("secret must be at least %d bytes", MinSecretLength)
)

// Claim is what a verified token asserts.
type Claim struct {
	Route     string
	ExpiresAt time.Time
}

// Codec issues and verifies route tokens.
type Codec struct {
	key []byte
	now func() time.Time
}

// NewCodec derives a signing key from secret and returns a codec using it.
func NewCodec(secret []byte) (*Codec, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}

	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("deriving signing key: %w", err)
	}

	return &Codec{key: key, now: time.Now}, nil
}

// Issue signs a token for route expiring at expiresAt. The expiry is returned
// unchanged; issuance never extends or shortens it.
func (c *Codec) Issue(route string, expiresAt time.Time) (string, time.Time, error) {
	claims := jwt.RegisteredClaims{
		Subject:   route,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}
	return token, expiresAt, nil
}

// Verify checks the token signature, expiry and route binding, in that order.
func (c *Codec) Verify(tokenString, expectedRoute string) (Claim, error) {
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return c.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claim{}, ErrExpiredToken
		}
		return Claim{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid || claims.ExpiresAt == nil {
		return Claim{}, ErrInvalidToken
	}

	if claims.Subject != expectedRoute {
		return Claim{}, ErrRouteMismatch
	}

	return Claim{Route: claims.Subject, ExpiresAt: claims.ExpiresAt.Time}, nil
}

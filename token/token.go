// Package token issues and verifies the signed access tokens that
// authenticate requests to the protected API. Tokens are stateless HS256
// JWTs: any holder of the signing key can verify them, and there is no
// server-side session or revocation state.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is the token validity window applied when none is configured.
const DefaultTTL = time.Hour

// ErrInvalid is returned for any token that fails verification: bad
// signature, malformed payload, wrong algorithm, or expired. Callers get a
// single generic error so responses do not leak which check failed.
var ErrInvalid = errors.New("invalid token")

// Identity is the verified principal embedded in an access token.
type Identity struct {
	UserID   int64
	Username string
}

type claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Service issues and verifies access tokens. The signing key is provided at
// construction time, so distinct instances (tests, key rotation) can hold
// distinct keys.
type Service struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewService creates a token service with the given signing key and validity
// window. A zero or negative ttl falls back to DefaultTTL.
func NewService(key []byte, ttl time.Duration) (*Service, error) {
	if len(key) == 0 {
		return nil, errors.New("signing key is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		key: key,
		ttl: ttl,
		now: time.Now,
	}, nil
}

// SetClock overrides the time source used for issuing and verifying tokens.
// Intended for tests that need to cross the expiry boundary deterministically.
func (s *Service) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// TTL returns the configured validity window.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Issue produces a signed token asserting the given identity, valid for the
// configured window from now.
func (s *Service) Issue(userID int64, username string) (string, error) {
	now := s.now()
	c := claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Verify validates signature, algorithm, and expiry, returning the embedded
// identity on success. Only HS256 is accepted; tokens carrying any other
// algorithm (including "none") are rejected outright.
func (s *Service) Verify(tokenString string) (*Identity, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(tokenString, &c,
		func(*jwt.Token) (any, error) { return s.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalid
	}

	userID, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return nil, ErrInvalid
	}

	return &Identity{UserID: userID, Username: c.Username}, nil
}

// Package jwt signs and verifies user session tokens.
package jwt

import (
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

const (
	// DefaultTTL is how long an issued token stays valid.
	DefaultTTL = 24 * time.Hour
	issuer     = "disaster-alert"
)

// ErrInvalidToken is returned for malformed, forged or expired tokens.
var ErrInvalidToken = errors.New("invalid token")

// UserClaims identifies the user a token was issued to.
// It carries no role, roles are loaded from the user document.
type UserClaims struct {
	jwt.RegisteredClaims
}

// UserID returns the subject of the token.
func (c *UserClaims) UserID() string {
	return c.Subject
}

// Signer issues and parses HS256 user tokens.
type Signer struct {
	secret []byte
	ttl    time.Duration
	clock  clockwork.Clock
}

// Option customizes a Signer.
type Option func(*Signer)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(s *Signer) {
		s.ttl = ttl
	}
}

// WithClock sets the clock used for issue and expiry times.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Signer) {
		s.clock = clock
	}
}

// NewSigner returns a Signer for the given secret.
func NewSigner(secret []byte, opts ...Option) (*Signer, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt secret is empty")
	}

	s := &Signer{
		secret: secret,
		ttl:    DefaultTTL,
		clock:  clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Sign issues a token for userID.
func (s *Signer) Sign(userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("empty user id")
	}

	now := s.clock.Now()
	claims := &UserClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}

	return token, nil
}

// Parse verifies token and returns its claims.
func (s *Signer) Parse(token string) (*UserClaims, error) {
	claims := new(UserClaims)
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidToken, err.Error())
	}
	if claims.Subject == "" {
		return nil, errors.Wrap(ErrInvalidToken, "missing subject")
	}

	return claims, nil
}

// Package jwt signs and verifies HS256 tokens embedded in invitation and
// unsubscribe links.
package jwt

import (
	"errors"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v4"
)

// Claims carries the registered claims plus the event the link refers to.
type Claims struct {
	EventID string `json:"eid,omitempty"`
	Region  string `json:"rgn,omitempty"`
	jwtlib.RegisteredClaims
}

// Config is read from the environment.
type Config struct {
	Secret string `env:"JWT_SECRET,required"`
	Issuer string `env:"JWT_ISSUER" envDefault:"prytaneum"`
}

// Service signs claims with a shared HMAC secret.
type Service struct {
	key    []byte
	issuer string
	now    func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now, used for deterministic expiry in tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func New(cfg Config, opts ...Option) (*Service, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSigningKey
	}
	s := &Service{
		key:    []byte(cfg.Secret),
		issuer: cfg.Issuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Sign fills the issuer when unset and returns the compact token.
func (s *Service) Sign(claims Claims) (string, error) {
	if claims.Issuer == "" {
		claims.Issuer = s.issuer
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("jwt: sign: %w", err)
	}
	return token, nil
}

// Parse verifies the signature, the temporal claims and that the token was
// issued for audience.
func (s *Service) Parse(token, audience string) (*Claims, error) {
	claims := &Claims{}
	parser := jwtlib.Parser{}
	_, err := parser.ParseWithClaims(token, claims, func(t *jwtlib.Token) (any, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.key, nil
	})
	switch {
	case errors.Is(err, jwtlib.ErrTokenExpired):
		return nil, errors.Join(ErrExpiredToken, err)
	case err != nil:
		return nil, errors.Join(ErrInvalidToken, err)
	}
	if !claims.VerifyAudience(audience, true) {
		return nil, ErrInvalidAudience
	}
	return claims, nil
}

// Now returns the service clock.
func (s *Service) Now() time.Time {
	return s.now()
}

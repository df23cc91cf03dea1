// Package auth issues and verifies login sessions.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"sheetboard/internal/models"
)

// Sessions signs HS256 session tokens carrying the principal.
type Sessions struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSessions returns a signer. A zero ttl means 24 hours.
func NewSessions(secret string, ttl time.Duration) (*Sessions, error) {
	if secret == "" {
		return nil, errors.New("session secret must not be empty")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Sessions{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL is how long issued tokens stay valid.
func (s *Sessions) TTL() time.Duration {
	return s.ttl
}

type claims struct {
	Role models.Role `json:"role"`
	jwt.RegisteredClaims
}

// Issue returns a signed token for p.
func (s *Sessions) Issue(p models.Principal) (string, error) {
	now := s.now()
	c := claims{
		Role: p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return token, nil
}

// Parse verifies token and returns the principal it was issued for.
func (s *Sessions) Parse(token string) (models.Principal, error) {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return models.Principal{}, fmt.Errorf("parse session: %w", err)
	}
	if c.Subject == "" {
		return models.Principal{}, errors.New("parse session: missing subject")
	}
	return models.Principal{Email: c.Subject, Role: c.Role}, nil
}

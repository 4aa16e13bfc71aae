// Package auth turns bearer tokens into the acting party of a request.
// Tokens only identify who is responsible for a movement; there is no
// permission model behind them.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"canteiro/internal/core/apperror"
	appctx "canteiro/internal/core/context"
)

// Config holds token settings.
type Config struct {
	Secret   string
	Issuer   string
	TokenTTL time.Duration
}

// Claims are the JWT claims issued and accepted.
type Claims struct {
	jwt.RegisteredClaims
	Name  string   `json:"name,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// TokenService signs and verifies HS256 tokens.
type TokenService struct {
	cfg Config
	now func() time.Time
}

// NewTokenService creates a token service.
func NewTokenService(cfg Config) *TokenService {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 12 * time.Hour
	}
	return &TokenService{cfg: cfg, now: time.Now}
}

// Issue signs a token for subject.
func (s *TokenService) Issue(subject, name string, roles ...string) (string, time.Time, error) {
	if strings.TrimSpace(subject) == "" {
		return "", time.Time{}, apperror.NewValidation("subject is required").WithDetail("field", "subject")
	}
	now := s.now()
	expiresAt := now.Add(s.cfg.TokenTTL)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Name:  name,
		Roles: roles,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks signature, issuer and expiry and returns the actor.
func (s *TokenService) Verify(token string) (*appctx.Actor, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if s.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.Issuer))
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return []byte(s.cfg.Secret), nil
	}, opts...)
	if err != nil {
		msg := "invalid token"
		if errors.Is(err, jwt.ErrTokenExpired) {
			msg = "token expired"
		}
		return nil, apperror.NewUnauthorized(msg).WithCause(err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || claims.Subject == "" {
		return nil, apperror.NewUnauthorized("invalid token claims")
	}
	return &appctx.Actor{Subject: claims.Subject, Name: claims.Name, Roles: claims.Roles}, nil
}

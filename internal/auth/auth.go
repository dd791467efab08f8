package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/frahmantamala/teamboard/internal"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is what the dashboard's identity provider puts in an access token. Only the
// subject is used here; it becomes the user id for every permission check.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenValidator verifies HS256 bearer tokens issued elsewhere. This service never
// issues tokens.
type TokenValidator struct {
	secret   []byte
	issuer   string
	audience string
	now      func() time.Time
}

func NewTokenValidator(cfg internal.SecurityConfig) *TokenValidator {
	return &TokenValidator{
		secret:   []byte(cfg.JWTSecret),
		issuer:   cfg.JWTIssuer,
		audience: cfg.JWTAudience,
		now:      time.Now,
	}
}

// WithClock overrides the time source used for exp/nbf checks.
func (v *TokenValidator) WithClock(now func() time.Time) *TokenValidator {
	v.now = now
	return v
}

// Validate parses tokenString and returns its claims. Expired tokens map to
// internal.ErrTokenExpired; every other failure maps to internal.ErrInvalidToken.
func (v *TokenValidator) Validate(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, internal.ErrTokenExpired.WithCause(err)
		}
		return nil, internal.ErrInvalidToken.WithCause(err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, internal.ErrInvalidToken
	}
	return claims, nil
}

// Package auth verifies identity tokens issued by the platform's identity
// provider and exposes the actor identity and permission scopes they carry.
// The audit service never authenticates users itself: tokens are an opaque
// collaborator input, and a missing or invalid token simply yields no actor.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stockledger/stockledger/internal/db/models"
)

// ScopeAuditRead is the permission required to read audit logs and statistics.
const ScopeAuditRead = "audit:read"

// Token parsing errors.
var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims is the token payload issued by the platform identity provider.
type Claims struct {
	UserID   int64    `json:"user_id"`
	UserName string   `json:"user_name"`
	Email    string   `json:"email"`
	Role     string   `json:"role"`
	Scopes   []string `json:"scopes"`
	jwt.RegisteredClaims
}

// Actor converts verified claims into the audit actor shape.
func (c *Claims) Actor() models.Actor {
	actor := models.Actor{}
	if c.UserID != 0 {
		id := c.UserID
		actor.UserID = &id
	}
	if c.UserName != "" {
		name := c.UserName
		actor.UserName = &name
	}
	if c.Email != "" {
		email := c.Email
		actor.UserEmail = &email
	}
	if c.Role != "" {
		role := c.Role
		actor.UserRole = &role
	}
	return actor
}

// HasScope reports whether the token grants the given permission scope.
func (c *Claims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// ParseToken verifies an HMAC-signed token against the shared secret and
// returns its claims. Only HS256/384/512 are accepted; any other signing
// method is rejected to prevent algorithm-confusion attacks.
func ParseToken(tokenString, secret string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// BearerToken extracts the token from an Authorization header value,
// tolerating a missing "Bearer" prefix for older clients.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}
	if strings.HasPrefix(header, "Bearer ") {
		header = strings.TrimPrefix(header, "Bearer ")
	}
	if header == "" {
		return "", ErrMissingToken
	}
	return header, nil
}

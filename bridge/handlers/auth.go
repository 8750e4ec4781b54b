package handlers

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// Token issuer and permissions.
const (
	TokenIssuer = "crypticscore-bridge"

	PermissionDecrypt = "campaign:decrypt"
)

// CustomClaims defines the JWT claims accepted by protected routes.
type CustomClaims struct {
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

// Has reports whether the claims grant permission.
func (c *CustomClaims) Has(permission string) bool {
	for _, p := range c.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// NewClaims returns an empty claims value for echojwt to decode into.
func NewClaims(echo.Context) jwt.Claims {
	return new(CustomClaims)
}

// IssueToken signs an HS256 token for subject valid for ttl.
func IssueToken(secret []byte, subject string, ttl time.Duration, permissions ...string) (string, error) {
	if len(secret) == 0 {
		return "", fmt.Errorf("empty signing secret")
	}
	now := time.Now()
	claims := &CustomClaims{
		Permissions: permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    TokenIssuer,
			Subject:   subject,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// claimsFrom returns the claims set by the JWT middleware.
func claimsFrom(c echo.Context) (*CustomClaims, bool) {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok {
		return nil, false
	}
	claims, ok := token.Claims.(*CustomClaims)
	return claims, ok
}

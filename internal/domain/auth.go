package domain

import (
	"github.com/golang-jwt/jwt/v5"
)

// Scopes read API.
const (
	ScopeRead     = "ledger.read"
	ScopeAllocate = "ledger.allocate"
)

// CustomClaims — полезная нагрузка RS256 токена для read API.
type CustomClaims struct {
	UserID string          `json:"user_id"`
	Scopes map[string]bool `json:"scopes"` // "ledger.read": true
	jwt.RegisteredClaims
}

// HasScope сообщает, выдан ли токену scope.
func (c *CustomClaims) HasScope(scope string) bool {
	return c.Scopes[scope]
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"` // Всегда "Bearer"
	ExpiresIn   int64  `json:"expires_in"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

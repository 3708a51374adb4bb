package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are the only supported JWT claims shape for this service.
// ReporterID is the caller's external identity (the id reports are
// attributed to); it must be present on every token.
type Claims struct {
	jwt.RegisteredClaims

	ReporterID string    `json:"reporter_id"`
	Role       string    `json:"role"`
	TokenType  TokenType `json:"token_type"`
}

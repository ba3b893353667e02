package auth

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

// Identity is the verified caller handed to the core by the auth capability.
type Identity struct {
	UserID string
	Role   string
	Email  string
}

// TokenParser validates access tokens issued by the auth service.
type TokenParser struct {
	secretKey []byte
}

// NewTokenParser returns a parser for HMAC-signed tokens. An empty secret
// yields a parser that rejects every token.
func NewTokenParser(secret string) *TokenParser {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return &TokenParser{}
	}
	return &TokenParser{secretKey: []byte(secret)}
}

// ParseAndValidateToken parses a JWT token string and returns its claims.
// If expectedType is non-empty, the claim "typ" must match it.
func (p *TokenParser) ParseAndValidateToken(tokenStr, expectedType string) (jwt.MapClaims, error) {
	if p == nil || p.secretKey == nil {
		return nil, fmt.Errorf("JWT secret not configured")
	}

	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return p.secretKey, nil
	})
	if err != nil || token == nil || !token.Valid {
		return nil, fmt.Errorf("invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}
	if expectedType != "" {
		if typ, ok := claims["typ"].(string); !ok || typ != expectedType {
			return nil, fmt.Errorf("invalid token type")
		}
	}
	return claims, nil
}

// IdentityFromToken extracts the caller identity from an access token.
func (p *TokenParser) IdentityFromToken(tokenStr string) (*Identity, error) {
	claims, err := p.ParseAndValidateToken(tokenStr, "access")
	if err != nil {
		return nil, err
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		sub, _ = claims["user_id"].(string)
	}
	if sub == "" {
		return nil, fmt.Errorf("token has no subject")
	}

	role, _ := claims["role"].(string)
	email, _ := claims["email"].(string)
	return &Identity{UserID: sub, Role: role, Email: email}, nil
}

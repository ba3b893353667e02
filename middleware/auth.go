package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aravind-gm/oranew/common/auth"
)

const (
	UserContextKey = "userID"
	RoleContextKey = "role"
	RoleAdmin      = "admin"
)

// AuthMiddleware resolves the caller from the identity headers injected by
// the API gateway, their cookie fallbacks, or a bearer access token.
func AuthMiddleware(tokens *auth.TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")
		role := c.GetHeader("X-User-Role")
		email := c.GetHeader("X-User-Email")

		// Fallback to cookies (set by API gateway) if headers missing
		if userID == "" {
			if v, err := c.Cookie("user_id"); err == nil && v != "" {
				userID = v
			}
		}
		if role == "" {
			if v, err := c.Cookie("user_role"); err == nil && v != "" {
				role = v
			}
		}

		if userID == "" {
			if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
				identity, err := tokens.IdentityFromToken(strings.TrimPrefix(header, "Bearer "))
				if err != nil {
					c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token", "code": "UNAUTHORIZED"})
					return
				}
				userID, role, email = identity.UserID, identity.Role, identity.Email
			}
		}

		if _, err := uuid.Parse(userID); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "code": "UNAUTHORIZED"})
			return
		}

		c.Set(UserContextKey, userID)
		c.Set(RoleContextKey, strings.ToLower(role))
		c.Set("email", email)
		c.Next()
	}
}

// GetUserID extracts the user ID from the Gin context.
func GetUserID(c *gin.Context) (uuid.UUID, error) {
	if val, ok := c.Get(UserContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return uuid.Parse(id)
		}
	}
	return uuid.Nil, errors.New("user ID not found in context")
}

func IsAdmin(c *gin.Context) bool {
	role, _ := c.Get(RoleContextKey)
	return role == RoleAdmin
}

// AdminOnly restricts access to admin role.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsAdmin(c) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin role required", "code": "FORBIDDEN"})
			return
		}
		c.Next()
	}
}

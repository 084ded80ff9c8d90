package middleware

import (
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	apperrors "github.com/uniedit/payrecon/internal/shared/errors"
	"github.com/uniedit/payrecon/internal/shared/response"
)

const (
	// AuthorizationHeader is the header key for authorization.
	AuthorizationHeader = "Authorization"
	// BearerPrefix is the prefix for bearer tokens.
	BearerPrefix = "Bearer "
	// SubjectKey is the context key for the token subject.
	SubjectKey = "subject"
	// RoleKey is the context key for the caller role.
	RoleKey = "role"
)

// Roles allowed on the admin API.
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
)

// JWTValidator defines the interface for JWT token validation.
type JWTValidator interface {
	ValidateToken(token string) (*Claims, error)
}

// Auth returns a middleware that validates JWT tokens.
// If the token is valid, it sets subject and role in the context.
// If optional is true, the middleware will not abort on missing/invalid tokens.
func Auth(validator JWTValidator, optional bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)
		if token == "" {
			if !optional {
				response.Error(c, apperrors.Unauthorized("authorization header required"))
				c.Abort()
				return
			}
			c.Next()
			return
		}

		claims, err := validator.ValidateToken(token)
		if err != nil {
			if !optional {
				response.Error(c, apperrors.Unauthorized("invalid or expired token").WithCode("INVALID_TOKEN"))
				c.Abort()
				return
			}
			c.Next()
			return
		}

		c.Set(SubjectKey, claims.Subject)
		c.Set(RoleKey, claims.Role)

		c.Next()
	}
}

// RequireAuth returns a middleware that requires a valid JWT token.
func RequireAuth(validator JWTValidator) gin.HandlerFunc {
	return Auth(validator, false)
}

// RequireRole rejects callers whose token role is not one of roles. It must
// run after Auth.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !slices.Contains(roles, c.GetString(RoleKey)) {
			response.Error(c, apperrors.Forbidden(""))
			c.Abort()
			return
		}
		c.Next()
	}
}

// extractBearerToken extracts the bearer token from the Authorization header.
func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader(AuthorizationHeader)
	if !strings.HasPrefix(authHeader, BearerPrefix) {
		return ""
	}
	return strings.TrimPrefix(authHeader, BearerPrefix)
}

// GetSubject returns the authenticated subject, or "" when unauthenticated.
func GetSubject(c *gin.Context) string {
	return c.GetString(SubjectKey)
}

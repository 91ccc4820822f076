package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/chatlog-service/pkg/jwt"
	"github.com/weiawesome/chatlog-service/pkg/log"
	"github.com/weiawesome/chatlog-service/pkg/response"
)

const (
	UserIDKey     = log.FieldUserID
	IdentityKey   = log.FieldIdentity
	RolesKey      = "roles"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "

	// QueryTokenKey carries the token for WebSocket upgrades, where browsers
	// cannot set headers.
	QueryTokenKey = "access_token"
)

// TokenValidator validates an access token and returns its claims.
type TokenValidator interface {
	ValidateToken(token string) (*jwt.Claims, error)
}

// AuthMiddleware validates JWT access tokens.
type AuthMiddleware struct {
	validator  TokenValidator
	allowQuery bool
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(validator TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: validator}
}

// AllowQueryToken additionally accepts the token from the access_token query parameter.
func (m *AuthMiddleware) AllowQueryToken() *AuthMiddleware {
	return &AuthMiddleware{validator: m.validator, allowQuery: true}
}

// RequireAuth returns a Gin middleware that validates JWT tokens and stores
// the verified identity on the context.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := m.extractToken(c)
		if !ok {
			response.Unauthorized(c, "missing or malformed authorization")
			c.Abort()
			return
		}

		claims, err := m.validator.ValidateToken(token)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, jwt.ErrExpiredToken) {
				msg = "token has expired"
			}
			response.Unauthorized(c, msg)
			c.Abort()
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(IdentityKey, claims.Identity())
		c.Set(RolesKey, claims.Roles)

		ctx := log.WithFields(c.Request.Context(), log.FieldIdentity, claims.Identity())
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

func (m *AuthMiddleware) extractToken(c *gin.Context) (string, bool) {
	if header := c.GetHeader(AuthHeaderKey); header != "" {
		if !strings.HasPrefix(header, BearerPrefix) {
			return "", false
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, BearerPrefix))
		return token, token != ""
	}
	if m.allowQuery {
		if token := c.Query(QueryTokenKey); token != "" {
			return token, true
		}
	}
	return "", false
}

// GetIdentity extracts the verified identity from Gin context.
func GetIdentity(c *gin.Context) string {
	return c.GetString(IdentityKey)
}

// GetUserID extracts user ID from Gin context.
func GetUserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/projectchat-server/internal/auth"
)

// ContextKeyIdentity is the gin context key holding the caller's *auth.Identity.
const ContextKeyIdentity = "identity"

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// AuthMiddleware resolves the bearer token into an identity.
func AuthMiddleware(resolver auth.Resolver, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.TokenFromRequest(c.Request, false)
		if err == nil {
			var identity *auth.Identity
			identity, err = resolver.Resolve(token)
			if err == nil {
				c.Set(ContextKeyIdentity, identity)
				c.Next()
				return
			}
		}

		logger.Debug().Err(err).Str("path", c.Request.URL.Path).Msg("request not authenticated")
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: authMessage(err), Code: "unauthenticated"})
	}
}

// RequireGroupManager rejects callers whose role cannot manage groups.
func RequireGroupManager() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := identityFrom(c)
		if !ok || !identity.Role.CanManageGroups() {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{Error: "instructor role required", Code: "forbidden"})
			return
		}
		c.Next()
	}
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("http request")
	}
}

func identityFrom(c *gin.Context) (*auth.Identity, bool) {
	v, exists := c.Get(ContextKeyIdentity)
	if !exists {
		return nil, false
	}
	identity, ok := v.(*auth.Identity)
	return identity, ok && identity != nil
}

func authMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrMissingToken):
		return "missing token"
	case errors.Is(err, auth.ErrMalformedHeader):
		return "invalid authorization header format"
	case errors.Is(err, auth.ErrTokenExpired):
		return "token expired"
	default:
		return "invalid token"
	}
}

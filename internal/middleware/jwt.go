package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/larpcal/backend/internal/auth"
)

// ContextIdentity is the gin context key holding the caller's auth.Identity.
const ContextIdentity = "identity"

// Authenticate resolves a bearer token into an identity stored in both the gin context
// and the request context. Missing, malformed or invalid tokens leave the request
// anonymous; they never abort it.
func Authenticate(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.Next()
			return
		}
		claims, err := jwtService.Validate(token)
		if err != nil {
			c.Next()
			return
		}
		id := claims.Identity()
		c.Set(ContextIdentity, id)
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// CurrentIdentity returns the caller identity, or nil for anonymous requests.
func CurrentIdentity(c *gin.Context) *auth.Identity {
	v, ok := c.Get(ContextIdentity)
	if !ok {
		return nil
	}
	id, ok := v.(auth.Identity)
	if !ok {
		return nil
	}
	return &id
}

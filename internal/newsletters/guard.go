package newsletters

import (
	"github.com/gin-gonic/gin"

	"github.com/larpcal/backend/internal/middleware"
)

// ContextScope is the gin context key for the scope resolved by a guard.
const ContextScope = "newsletterScope"

// ResolveScope resolves the caller's scope on newsletter :id.
func ResolveScope(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := middleware.ParamID(c, "id")
		if err != nil {
			middleware.Fail(c, err)
			return
		}
		scope, err := m.ResolveScope(c.Request.Context(), middleware.CurrentIdentity(c), id)
		if err != nil {
			middleware.Fail(c, err)
			return
		}
		c.Set(ContextScope, scope)
		c.Next()
	}
}

// GlobalScope marks admin-only routes as acting on every newsletter.
func GlobalScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ContextScope, Global())
		c.Next()
	}
}

// OrgScope scopes /orgs/:id/newsletters routes to organization :id. Ownership is
// checked by the organization guard in front of it.
func OrgScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := middleware.ParamID(c, "id")
		if err != nil {
			middleware.Fail(c, err)
			return
		}
		c.Set(ContextScope, Org(id))
		c.Next()
	}
}

// CurrentScope returns the scope set by a guard.
func CurrentScope(c *gin.Context) Scope {
	s, _ := c.MustGet(ContextScope).(Scope)
	return s
}

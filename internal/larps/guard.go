package larps

import (
	"github.com/gin-gonic/gin"

	"github.com/larpcal/backend/internal/middleware"
	"github.com/larpcal/backend/internal/models"
	"github.com/larpcal/backend/pkg/httperr"
)

// ContextLarp is the gin context key for the larp loaded by a guard.
const ContextLarp = "larp"

func load(c *gin.Context, m *Manager) (*models.Larp, bool) {
	id, err := middleware.ParamID(c, "id")
	if err != nil {
		middleware.Fail(c, err)
		return nil, false
	}
	l, err := m.Get(c.Request.Context(), id)
	if err != nil {
		middleware.Fail(c, err)
		return nil, false
	}
	return l, true
}

// OwnerOrAdmin allows the owner of larp :id's organization, or an admin.
// A missing larp is 404 before any identity check.
func OwnerOrAdmin(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		l, ok := load(c, m)
		if !ok {
			return
		}
		if !middleware.CurrentIdentity(c).Owns(l.OwnerUsername()) {
			middleware.Fail(c, httperr.Unauthorized(""))
			return
		}
		c.Set(ContextLarp, l)
		c.Next()
	}
}

// ProtectUnpublished hides unpublished larps from everyone but the owner and admins
// by answering 404.
func ProtectUnpublished(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		l, ok := load(c, m)
		if !ok {
			return
		}
		if !l.IsPublished && !middleware.CurrentIdentity(c).Owns(l.OwnerUsername()) {
			middleware.Fail(c, httperr.NotFound("Larp not found"))
			return
		}
		c.Set(ContextLarp, l)
		c.Next()
	}
}

// Loaded returns the larp stored by a guard.
func Loaded(c *gin.Context) *models.Larp {
	l, _ := c.MustGet(ContextLarp).(*models.Larp)
	return l
}

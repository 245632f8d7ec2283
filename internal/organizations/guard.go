package organizations

import (
	"github.com/gin-gonic/gin"

	"github.com/larpcal/backend/internal/middleware"
	"github.com/larpcal/backend/internal/models"
	"github.com/larpcal/backend/pkg/httperr"
)

// ContextOrganization is the gin context key for the organization loaded by a guard.
const ContextOrganization = "organization"

// MatchingOrganizerOrAdmin allows the owner of organization :id, or an admin.
// Missing organizations are 404 regardless of the caller.
func MatchingOrganizerOrAdmin(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := middleware.ParamID(c, "id")
		if err != nil {
			middleware.Fail(c, err)
			return
		}
		org, err := m.GetByID(c.Request.Context(), id)
		if err != nil {
			middleware.Fail(c, err)
			return
		}
		if !middleware.CurrentIdentity(c).Owns(org.Username) {
			middleware.Fail(c, httperr.Unauthorized(""))
			return
		}
		c.Set(ContextOrganization, org)
		c.Next()
	}
}

// Loaded returns the organization stored by MatchingOrganizerOrAdmin.
func Loaded(c *gin.Context) *models.Organization {
	org, _ := c.MustGet(ContextOrganization).(*models.Organization)
	return org
}

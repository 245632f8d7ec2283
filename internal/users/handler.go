package users

import (
	"github.com/gin-gonic/gin"

	"github.com/larpcal/backend/internal/middleware"
	"github.com/larpcal/backend/internal/models"
	"github.com/larpcal/backend/pkg/httperr"
	"github.com/larpcal/backend/pkg/response"
)

// Handler handles user HTTP endpoints.
type Handler struct {
	manager *Manager
}

// NewHandler creates a user handler.
func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

// List handles GET /users.
func (h *Handler) List(c *gin.Context) {
	list, err := h.manager.List(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	response.OK(c, gin.H{"users": list})
}

// Get handles GET /users/:username.
func (h *Handler) Get(c *gin.Context) {
	user, err := h.manager.Get(c.Request.Context(), c.Param("username"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	response.OK(c, gin.H{"user": user})
}

// Update handles PATCH /users/:username.
func (h *Handler) Update(c *gin.Context) {
	var req models.UserForUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(httperr.FromBindError(err))
		return
	}
	id := middleware.CurrentIdentity(c)
	byAdmin := id != nil && id.IsAdmin
	user, err := h.manager.Update(c.Request.Context(), c.Param("username"), req, byAdmin)
	if err != nil {
		_ = c.Error(err)
		return
	}
	response.OK(c, gin.H{"user": user})
}

// Delete handles DELETE /users/:username.
func (h *Handler) Delete(c *gin.Context) {
	username := c.Param("username")
	if err := h.manager.Delete(c.Request.Context(), username); err != nil {
		_ = c.Error(err)
		return
	}
	response.OK(c, gin.H{"deleted": username})
}

// Follows handles GET /users/:username/follows.
func (h *Handler) Follows(c *gin.Context) {
	list, err := h.manager.Follows(c.Request.Context(), c.Param("username"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	response.OK(c, gin.H{"follows": list})
}

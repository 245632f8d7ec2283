package organizations

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/larpcal/backend/internal/middleware"
	"github.com/larpcal/backend/internal/models"
	"github.com/larpcal/backend/pkg/httperr"
	"github.com/larpcal/backend/pkg/response"
)

// MaxImageBytes bounds uploaded images.
const MaxImageBytes = 10 << 20

// ApprovalRequest is the body for PATCH /orgs/:id/approval.
type ApprovalRequest struct {
	IsApproved *bool `json:"isApproved" binding:"required"`
}

// FollowRequest is the body for PUT /orgs/:id/follow.
type FollowRequest struct {
	Emails bool `json:"emails"`
}

// Handler handles organization HTTP endpoints.
type Handler struct {
	manager *Manager
}

// NewHandler creates an organizations handler.
func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

// Create handles POST /orgs. The caller becomes the owner.
func (h *Handler) Create(c *gin.Context) {
	var body models.OrgForCreate
	if err := c.ShouldBindJSON(&body); err != nil {
		_ = c.Error(httperr.FromBindError(err))
		return
	}
	org, err := h.manager.Create(c.Request.Context(), middleware.CurrentIdentity(c).Username, body)
	if err != nil {
		_ = c.Error(err)
		return
	}
	response.Created(c, gin.H{"org": org})
}

// List handles GET /orgs.
func (h *Handler) List(c *gin.Context) {
	orgs, err := h.manager.List(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	response.OK(c, gin.H{"orgs": orgs})
}

// Get handles GET /orgs/:id.
func (h *Handler) Get(c *gin.Context) {
	id, err := middleware.ParamID(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}
	org, err := h.manager.Get(c.Request.Context(), id, middleware.CurrentIdentity(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	response.OK(c, gin.H{"org": org})
}

// Update handles PATCH /orgs/:id.
func (h *Handler) Update(c *gin.Context) {
	var body models.OrgForUpdate
	if err := c.ShouldBindJSON(&body); err != nil {
		_ = c.Error(httperr.FromBindError(err))
		return
	}
	org, err := h.manager.Update(c.Request.Context(), Loaded(c).ID, body)
	if err != nil {
		_ = c.Error(err)
		return
	}
	response.OK(c, gin.H{"org": org})
}

// Delete handles DELETE /orgs/:id.
func (h *Handler) Delete(c *gin.Context) {
	org, err := h.manager.Delete(c.Request.Context(), Loaded(c).ID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	response.OK(c, gin.H{"deleted": org.ID})
}

// SetApproval handles PATCH /orgs/:id/approval.
func (h *Handler) SetApproval(c *gin.Context) {
	id, err := middleware.ParamID(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}
	var body ApprovalRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		_ = c.Error(httperr.FromBindError(err))
		return
	}
	org, err := h.manager.SetApproved(c.Request.Context(), id, *body.IsApproved)
	if err != nil {
		_ = c.Error(err)
		return
	}
	response.OK(c, gin.H{"org": org})
}

// UpdateImage handles PUT /orgs/:id/image with a multipart "image" field.
func (h *Handler) UpdateImage(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxImageBytes)
	fh, err := c.FormFile("image")
	if err != nil {
		_ = c.Error(httperr.BadRequest("An image file is required"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		_ = c.Error(httperr.BadRequest("Could not read image"))
		return
	}
	defer f.Close()

	org, err := h.manager.UpdateImage(c.Request.Context(), Loaded(c).ID, f)
	if err != nil {
		_ = c.Error(err)
		return
	}
	response.OK(c, gin.H{"org": org})
}

// Follow handles PUT /orgs/:id/follow.
func (h *Handler) Follow(c *gin.Context) {
	id, err := middleware.ParamID(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}
	var body FollowRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		_ = c.Error(httperr.FromBindError(err))
		return
	}
	follow, err := h.manager.Follow(c.Request.Context(), id, middleware.CurrentIdentity(c).UserID, body.Emails)
	if err != nil {
		_ = c.Error(err)
		return
	}
	response.OK(c, gin.H{"following": follow})
}

// Unfollow handles DELETE /orgs/:id/follow.
func (h *Handler) Unfollow(c *gin.Context) {
	id, err := middleware.ParamID(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}
	if err := h.manager.Unfollow(c.Request.Context(), id, middleware.CurrentIdentity(c).UserID); err != nil {
		_ = c.Error(err)
		return
	}
	response.OK(c, gin.H{"unfollowed": id})
}

// Followers handles GET /orgs/:id/followers.
func (h *Handler) Followers(c *gin.Context) {
	list, err := h.manager.Followers(c.Request.Context(), Loaded(c).ID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	response.OK(c, gin.H{"followers": list})
}

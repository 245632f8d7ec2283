package newsletters

import (
	"github.com/gin-gonic/gin"

	"github.com/larpcal/backend/internal/middleware"
	"github.com/larpcal/backend/internal/models"
	"github.com/larpcal/backend/pkg/httperr"
	"github.com/larpcal/backend/pkg/response"
)

// Handler handles newsletter HTTP endpoints for both the admin and the organization routes.
type Handler struct {
	manager *Manager
}

// NewHandler creates a newsletters handler.
func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

// newsletterID reads :newsletterId on organization routes and :id elsewhere.
func newsletterID(c *gin.Context) (int64, error) {
	if c.Param("newsletterId") != "" {
		return middleware.ParamID(c, "newsletterId")
	}
	return middleware.ParamID(c, "id")
}

// List handles GET /newsletters and GET /orgs/:id/newsletters.
func (h *Handler) List(c *gin.Context) {
	list, err := h.manager.List(c.Request.Context(), CurrentScope(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	response.OK(c, gin.H{"newsletters": list})
}

// Create handles POST /newsletters and POST /orgs/:id/newsletters.
func (h *Handler) Create(c *gin.Context) {
	var body models.NewsletterForCreate
	if err := c.ShouldBindJSON(&body); err != nil {
		_ = c.Error(httperr.FromBindError(err))
		return
	}
	n, err := h.manager.Create(c.Request.Context(), CurrentScope(c), body)
	if err != nil {
		_ = c.Error(err)
		return
	}
	response.Created(c, gin.H{"newsletter": n})
}

// Get handles GET on a single newsletter.
func (h *Handler) Get(c *gin.Context) {
	id, err := newsletterID(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	n, err := h.manager.Get(c.Request.Context(), CurrentScope(c), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	response.OK(c, gin.H{"newsletter": n})
}

// Update handles PUT on a single newsletter.
func (h *Handler) Update(c *gin.Context) {
	id, err := newsletterID(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	var body models.NewsletterForUpdate
	if err := c.ShouldBindJSON(&body); err != nil {
		_ = c.Error(httperr.FromBindError(err))
		return
	}
	n, err := h.manager.Update(c.Request.Context(), CurrentScope(c), id, body)
	if err != nil {
		_ = c.Error(err)
		return
	}
	response.OK(c, gin.H{"newsletter": n})
}

// Delete handles DELETE on a single newsletter.
func (h *Handler) Delete(c *gin.Context) {
	id, err := newsletterID(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if err := h.manager.Delete(c.Request.Context(), CurrentScope(c), id); err != nil {
		_ = c.Error(err)
		return
	}
	response.OK(c, gin.H{"deleted": id})
}

// Send handles POST .../send.
func (h *Handler) Send(c *gin.Context) {
	id, err := newsletterID(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	res, err := h.manager.Send(c.Request.Context(), CurrentScope(c), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	response.OK(c, res)
}

// SendTest handles POST .../test with body {emails}.
func (h *Handler) SendTest(c *gin.Context) {
	id, err := newsletterID(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	var body models.TestSendRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		_ = c.Error(httperr.FromBindError(err))
		return
	}
	res, err := h.manager.SendTest(c.Request.Context(), CurrentScope(c), id, body.Emails)
	if err != nil {
		_ = c.Error(err)
		return
	}
	response.OK(c, res)
}

// View handles the public GET /newsletters/:id/view.
func (h *Handler) View(c *gin.Context) {
	id, err := middleware.ParamID(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}
	v, err := h.manager.View(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	response.OK(c, gin.H{"newsletter": v})
}

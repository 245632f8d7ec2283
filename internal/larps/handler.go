package larps

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

// Handler handles larp HTTP endpoints.
type Handler struct {
	manager *Manager
}

// NewHandler creates a larps handler.
func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

// List handles GET /events?q=<base64 json>.
func (h *Handler) List(c *gin.Context) {
	q, err := DecodeQuery(c.Query("q"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	list, err := h.manager.List(c.Request.Context(), q, middleware.CurrentIdentity(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	response.OK(c, gin.H{"larps": list})
}

// Create handles POST /events.
func (h *Handler) Create(c *gin.Context) {
	var body models.LarpForCreate
	if err := c.ShouldBindJSON(&body); err != nil {
		_ = c.Error(httperr.FromBindError(err))
		return
	}
	l, err := h.manager.Create(c.Request.Context(), middleware.CurrentIdentity(c), body)
	if err != nil {
		_ = c.Error(err)
		return
	}
	response.Created(c, gin.H{"larp": l})
}

// Get handles GET /events/:id.
func (h *Handler) Get(c *gin.Context) {
	response.OK(c, gin.H{"larp": Loaded(c)})
}

// Update handles PUT /events/:id.
func (h *Handler) Update(c *gin.Context) {
	var body models.LarpForUpdate
	if err := c.ShouldBindJSON(&body); err != nil {
		_ = c.Error(httperr.FromBindError(err))
		return
	}
	l, err := h.manager.Update(c.Request.Context(), middleware.CurrentIdentity(c), Loaded(c).ID, body)
	if err != nil {
		_ = c.Error(err)
		return
	}
	response.OK(c, gin.H{"larp": l})
}

// Delete handles DELETE /events/:id.
func (h *Handler) Delete(c *gin.Context) {
	l, err := h.manager.Delete(c.Request.Context(), Loaded(c).ID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	response.OK(c, gin.H{"deleted": l})
}

// Publish handles POST /events/:id/publish.
func (h *Handler) Publish(c *gin.Context) {
	l, err := h.manager.Publish(c.Request.Context(), Loaded(c).ID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	response.OK(c, gin.H{"larp": l})
}

// UpdateImage handles PUT /events/:id/image with a multipart "image" field.
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

	l, err := h.manager.UpdateImage(c.Request.Context(), Loaded(c).ID, f)
	if err != nil {
		_ = c.Error(err)
		return
	}
	response.OK(c, gin.H{"larp": l})
}

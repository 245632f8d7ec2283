package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/larpcal/backend/internal/models"
	"github.com/larpcal/backend/pkg/database"
	"github.com/larpcal/backend/pkg/httperr"
	"github.com/larpcal/backend/pkg/response"
)

// Accounts is the user side of authentication.
type Accounts interface {
	Authenticate(ctx context.Context, username, password string) (*models.User, error)
	Register(ctx context.Context, in models.UserForCreate) (*models.User, error)
	IdentityOf(ctx context.Context, username string) (Identity, error)
	GetUser(ctx context.Context, username string) (*models.User, error)
	ResetPassword(ctx context.Context, username, password string) (*models.PublicUser, error)
}

// ResetStore persists password reset requests.
type ResetStore interface {
	CreatePasswordReset(ctx context.Context, req *models.PasswordResetRequest) error
	GetPasswordReset(ctx context.Context, id uuid.UUID) (*models.PasswordResetRequest, error)
	DeletePasswordResets(ctx context.Context, username string) error
}

// ResetMailer delivers the password reset link.
type ResetMailer interface {
	SendPasswordReset(ctx context.Context, email, username, link string) error
}

// LoginRequest is the body for POST /auth/token.
type LoginRequest struct {
	Username string `json:"username" binding:"required,min=1,max=30"`
	Password string `json:"password" binding:"required,min=1"`
}

// ResetRequest is the body for POST /auth/password-reset/request.
type ResetRequest struct {
	Username string `json:"username" binding:"required"`
}

// ResetConfirm is the body for PATCH /auth/password-reset/confirm.
type ResetConfirm struct {
	Password string `json:"password" binding:"required,min=8,max=72,password"`
}

// TokenResponse is the auth response with JWT.
type TokenResponse struct {
	Token string `json:"token"`
}

const requestReceived = "Request Received"

// Handler handles auth HTTP endpoints.
type Handler struct {
	accounts  Accounts
	resets    ResetStore
	mailer    ResetMailer
	jwt       *JWTService
	publicURL string
	logger    *zap.Logger
}

// NewHandler creates an auth handler. publicURL is the frontend origin used in reset links.
func NewHandler(accounts Accounts, resets ResetStore, mailer ResetMailer, jwt *JWTService, publicURL string, logger *zap.Logger) *Handler {
	return &Handler{accounts: accounts, resets: resets, mailer: mailer, jwt: jwt, publicURL: publicURL, logger: logger}
}

// Token handles POST /auth/token.
func (h *Handler) Token(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(httperr.FromBindError(err))
		return
	}
	user, err := h.accounts.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.issue(c, http.StatusOK, user.Username)
}

// Refresh handles POST /auth/token/refresh. The new token reflects the current
// organizer and approval state, which is how a newly approved organizer picks it up.
func (h *Handler) Refresh(c *gin.Context) {
	id := FromContext(c.Request.Context())
	if id == nil {
		_ = c.Error(httperr.Unauthorized(""))
		return
	}
	h.issue(c, http.StatusOK, id.Username)
}

// Register handles POST /auth/register.
func (h *Handler) Register(c *gin.Context) {
	var req models.UserForCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(httperr.FromBindError(err))
		return
	}
	user, err := h.accounts.Register(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.issue(c, http.StatusCreated, user.Username)
}

func (h *Handler) issue(c *gin.Context, status int, username string) {
	id, err := h.accounts.IdentityOf(c.Request.Context(), username)
	if err != nil {
		_ = c.Error(err)
		return
	}
	token, err := h.jwt.Generate(id)
	if err != nil {
		_ = c.Error(fmt.Errorf("sign token: %w", err))
		return
	}
	c.JSON(status, TokenResponse{Token: token})
}

// RequestReset handles POST /auth/password-reset/request. The response is the same
// whether or not the username exists.
func (h *Handler) RequestReset(c *gin.Context) {
	var req ResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(httperr.BadRequest("Invalid username"))
		return
	}
	ctx := c.Request.Context()

	user, err := h.accounts.GetUser(ctx, req.Username)
	if err != nil {
		if httperr.StatusOf(err) == http.StatusNotFound || errors.Is(err, database.ErrNotFound) {
			response.Text(c, requestReceived)
			return
		}
		_ = c.Error(err)
		return
	}

	reset := &models.PasswordResetRequest{ID: uuid.New(), Username: user.Username, Email: user.Email}
	if err := h.resets.CreatePasswordReset(ctx, reset); err != nil {
		_ = c.Error(fmt.Errorf("create password reset: %w", err))
		return
	}
	token, err := h.jwt.GenerateReset(reset.ID, user.Username)
	if err != nil {
		_ = c.Error(fmt.Errorf("sign reset token: %w", err))
		return
	}
	link := fmt.Sprintf("%s/auth/password-reset/confirm?token=%s", h.publicURL, token)
	if err := h.mailer.SendPasswordReset(ctx, user.Email, user.Username, link); err != nil {
		h.logger.Error("send password reset email", zap.String("username", user.Username), zap.Error(err))
	}
	response.Text(c, requestReceived)
}

// ConfirmReset handles PATCH /auth/password-reset/confirm?token=.
func (h *Handler) ConfirmReset(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		_ = c.Error(httperr.Unauthorized(""))
		return
	}
	requestID, username, err := h.jwt.ValidateReset(token)
	if err != nil {
		if errors.Is(err, ErrExpiredToken) {
			_ = c.Error(httperr.BadRequest("Sorry - this link has expired."))
			return
		}
		_ = c.Error(httperr.Unauthorized(""))
		return
	}

	ctx := c.Request.Context()
	reset, err := h.resets.GetPasswordReset(ctx, requestID)
	if err != nil || reset.Username != username {
		_ = c.Error(httperr.BadRequest("This request is no longer valid"))
		return
	}

	var req ResetConfirm
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(httperr.FromBindError(err))
		return
	}
	user, err := h.accounts.ResetPassword(ctx, username, req.Password)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if err := h.resets.DeletePasswordResets(ctx, username); err != nil {
		h.logger.Error("clear password resets", zap.String("username", username), zap.Error(err))
	}
	response.OK(c, gin.H{"user": user})
}

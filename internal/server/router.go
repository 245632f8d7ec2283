// Package server assembles the HTTP routes of the calendar API.
package server

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/larpcal/backend/internal/auth"
	"github.com/larpcal/backend/internal/larps"
	"github.com/larpcal/backend/internal/middleware"
	"github.com/larpcal/backend/internal/newsletters"
	"github.com/larpcal/backend/internal/organizations"
	"github.com/larpcal/backend/internal/users"
	"github.com/larpcal/backend/pkg/httperr"
	"github.com/larpcal/backend/pkg/response"
)

// Deps is everything the router needs. Guards take the managers, routes take the handlers.
type Deps struct {
	JWT         *auth.JWTService
	Auth        *auth.Handler
	Users       *users.Manager
	Orgs        *organizations.Manager
	Larps       *larps.Manager
	Newsletters *newsletters.Manager

	CORSAllowedOrigins string
	Logger             *zap.Logger
	// Quiet disables request error logging, for tests.
	Quiet bool
}

// RegisterValidators installs the custom validation rules on gin's validator.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
	}
	return httperr.RegisterValidators(v)
}

// NewRouter builds the gin engine with every route.
func NewRouter(d Deps) (*gin.Engine, error) {
	if err := RegisterValidators(); err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.ErrorHandler(d.Logger, d.Quiet))
	router.Use(middleware.CORS(d.CORSAllowedOrigins))
	router.Use(middleware.Logger(d.Logger))
	router.Use(middleware.Authenticate(d.JWT))
	router.NoRoute(middleware.NotFound())

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	loggedIn := middleware.LoggedIn()
	admin := middleware.Admin()

	// Auth
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/token", d.Auth.Token)
		authGroup.POST("/token/refresh", loggedIn, d.Auth.Refresh)
		authGroup.POST("/register", d.Auth.Register)
		authGroup.POST("/password-reset/request", d.Auth.RequestReset)
		authGroup.PATCH("/password-reset/confirm", d.Auth.ConfirmReset)
	}

	// Users
	userHandler := users.NewHandler(d.Users)
	correctUser := middleware.CorrectUserOrAdmin()
	userGroup := router.Group("/users")
	{
		userGroup.GET("", admin, userHandler.List)
		userGroup.GET("/:username", correctUser, userHandler.Get)
		userGroup.PATCH("/:username", correctUser, userHandler.Update)
		userGroup.DELETE("/:username", correctUser, userHandler.Delete)
		userGroup.GET("/:username/follows", correctUser, userHandler.Follows)
	}

	// Events
	larpHandler := larps.NewHandler(d.Larps)
	ownerOrAdmin := larps.OwnerOrAdmin(d.Larps)
	events := router.Group("/events")
	{
		events.GET("", larpHandler.List)
		events.POST("", loggedIn, middleware.Organizer(), larpHandler.Create)
		events.GET("/:id", larps.ProtectUnpublished(d.Larps), larpHandler.Get)
		events.PUT("/:id", ownerOrAdmin, larpHandler.Update)
		events.DELETE("/:id", ownerOrAdmin, larpHandler.Delete)
		events.POST("/:id/publish", loggedIn, ownerOrAdmin, larpHandler.Publish)
		events.PUT("/:id/image", ownerOrAdmin, larpHandler.UpdateImage)
	}

	// Organizations, including their newsletters
	orgHandler := organizations.NewHandler(d.Orgs)
	newsletterHandler := newsletters.NewHandler(d.Newsletters)
	matchingOrganizer := organizations.MatchingOrganizerOrAdmin(d.Orgs)
	orgs := router.Group("/orgs")
	{
		orgs.GET("", orgHandler.List)
		orgs.POST("", loggedIn, orgHandler.Create)
		orgs.GET("/:id", orgHandler.Get)
		orgs.PATCH("/:id", loggedIn, matchingOrganizer, orgHandler.Update)
		orgs.DELETE("/:id", matchingOrganizer, orgHandler.Delete)
		orgs.PATCH("/:id/approval", loggedIn, admin, orgHandler.SetApproval)
		orgs.PUT("/:id/image", matchingOrganizer, orgHandler.UpdateImage)
		orgs.PUT("/:id/follow", loggedIn, orgHandler.Follow)
		orgs.DELETE("/:id/follow", loggedIn, orgHandler.Unfollow)
		orgs.GET("/:id/followers", matchingOrganizer, orgHandler.Followers)

		orgNews := orgs.Group("/:id/newsletters", matchingOrganizer, newsletters.OrgScope())
		orgNews.GET("", newsletterHandler.List)
		orgNews.POST("", newsletterHandler.Create)
		orgNews.GET("/:newsletterId", newsletterHandler.Get)
		orgNews.PUT("/:newsletterId", newsletterHandler.Update)
		orgNews.DELETE("/:newsletterId", newsletterHandler.Delete)
		orgNews.POST("/:newsletterId/send", newsletterHandler.Send)
		orgNews.POST("/:newsletterId/test", newsletterHandler.SendTest)
	}

	// Platform newsletters
	resolve := newsletters.ResolveScope(d.Newsletters)
	news := router.Group("/newsletters")
	{
		news.GET("", admin, newsletters.GlobalScope(), newsletterHandler.List)
		news.POST("", admin, newsletters.GlobalScope(), newsletterHandler.Create)
		news.GET("/:id", resolve, newsletterHandler.Get)
		news.PUT("/:id", resolve, newsletterHandler.Update)
		news.DELETE("/:id", resolve, newsletterHandler.Delete)
		news.POST("/:id/send", resolve, newsletterHandler.Send)
		news.POST("/:id/test", resolve, newsletterHandler.SendTest)
		news.GET("/:id/view", newsletterHandler.View)
	}

	return router, nil
}

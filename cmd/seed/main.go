// Package main seeds a development database with an admin, an organizer with an
// approved organization and a published larp, and a regular user.
package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/larpcal/backend/config"
	"github.com/larpcal/backend/internal/auth"
	"github.com/larpcal/backend/internal/images"
	"github.com/larpcal/backend/internal/larps"
	"github.com/larpcal/backend/internal/mailing"
	"github.com/larpcal/backend/internal/models"
	"github.com/larpcal/backend/internal/organizations"
	"github.com/larpcal/backend/internal/users"
	"github.com/larpcal/backend/pkg/database"
	"github.com/larpcal/backend/pkg/storage"
	"github.com/larpcal/backend/pkg/utils"
)

const testPassword = "test123!"

func main() {
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, database.PoolOptions{
		DSN:      cfg.Database.DSN(),
		MaxConns: int32(cfg.Database.MaxConns),
	}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()
	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	userRepo := users.NewRepository(pool)
	orgRepo := organizations.NewRepository(pool)
	larpRepo := larps.NewRepository(pool)
	brevo := mailing.NewClient(mailing.Config{APIKey: cfg.Mailing.APIKey, BaseURL: cfg.Mailing.BaseURL}, logger)
	syncer := mailing.NewSyncer(brevo, userRepo, orgRepo, mailing.NewLocalLocker(), mailing.SyncConfig{
		AdminListID: cfg.Mailing.AdminListID,
		FolderID:    cfg.Mailing.FolderID,
	}, logger)
	imgs := images.NewProcessor(nil, storage.BucketURL(cfg.AWS.ImagesBucket), logger)

	orgManager := organizations.NewManager(orgRepo, larpRepo, syncer, imgs, logger)
	userManager := users.NewManager(userRepo, orgRepo, orgManager, syncer, utils.NewHasher(cfg.Auth.BcryptCost), logger)
	larpManager := larps.NewManager(larpRepo, orgRepo, imgs, logger)

	register := func(in models.UserForCreate) *models.User {
		in.Password = testPassword
		in.Subscribed = true
		u, err := userManager.Register(ctx, in)
		if err != nil {
			logger.Fatal("register", zap.String("username", in.Username), zap.Error(err))
		}
		return u
	}
	admin := register(models.UserForCreate{Username: "admin", Email: "admin@larpcal.com", FirstName: "Admin", LastName: "User", IsAdmin: true})
	orgUser := register(models.UserForCreate{Username: "orguser", Email: "org@larpcal.com", FirstName: "Org", LastName: "User"})
	register(models.UserForCreate{Username: "normaluser", Email: "user@larpcal.com", FirstName: "Normal", LastName: "User"})

	org, err := orgManager.Create(ctx, orgUser.Username, models.OrgForCreate{
		OrgName:     "Test LARP Org",
		OrgURL:      "https://testlarporg.com",
		Email:       orgUser.Email,
		Description: "This is a test LARP organization.",
	})
	if err != nil {
		logger.Fatal("create organization", zap.Error(err))
	}
	if _, err := orgManager.SetApproved(ctx, org.ID, true); err != nil {
		logger.Fatal("approve organization", zap.Error(err))
	}

	start := time.Now().UTC().AddDate(0, 2, 0).Truncate(24 * time.Hour)
	larp, err := larpManager.Create(ctx, &auth.Identity{UserID: admin.ID, Username: admin.Username, IsAdmin: true}, models.LarpForCreate{
		OrgID:        org.ID,
		Title:        "Test LARP Event",
		Description:  "This is a test LARP event.",
		Start:        start.Add(10 * time.Hour),
		End:          start.AddDate(0, 0, 4).Add(18 * time.Hour),
		AllDay:       true,
		City:         "Berlin",
		Country:      "Germany",
		Language:     "English",
		TicketStatus: models.TicketAvailable,
		EventURL:     "https://testlarporg.com/events/test-larp-event",
	})
	if err != nil {
		logger.Fatal("create larp", zap.Error(err))
	}
	if _, err := larpManager.Publish(ctx, larp.ID); err != nil {
		logger.Fatal("publish larp", zap.Error(err))
	}
	logger.Info("seed complete", zap.Int64("org_id", org.ID), zap.Int64("larp_id", larp.ID))
}

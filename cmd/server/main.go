// Package main runs the LARP calendar HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/larpcal/backend/config"
	"github.com/larpcal/backend/internal/auth"
	"github.com/larpcal/backend/internal/images"
	"github.com/larpcal/backend/internal/larps"
	"github.com/larpcal/backend/internal/mailing"
	"github.com/larpcal/backend/internal/newsletters"
	"github.com/larpcal/backend/internal/organizations"
	"github.com/larpcal/backend/internal/server"
	"github.com/larpcal/backend/internal/users"
	"github.com/larpcal/backend/internal/worker"
	"github.com/larpcal/backend/pkg/database"
	"github.com/larpcal/backend/pkg/queue"
	"github.com/larpcal/backend/pkg/redis"
	"github.com/larpcal/backend/pkg/storage"
	"github.com/larpcal/backend/pkg/utils"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
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

	// Remote get-or-create is serialized across instances through Redis when it is
	// configured, and within this process otherwise.
	var (
		locker mailing.Locker = mailing.NewLocalLocker()
		rdb    *redis.Client
	)
	if cfg.Redis.Addr != "" {
		rdb, err = redis.NewClient(ctx, redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, logger)
		if err != nil {
			logger.Warn("redis disabled, using in-process locks", zap.Error(err))
			rdb = nil
		} else {
			defer rdb.Close()
			locker = rdb
		}
	}

	var (
		imageStore images.Storage
		s3Client   *storage.S3
	)
	if cfg.AWS.ImagesBucket != "" {
		s3Client, err = storage.NewS3(ctx, storage.S3Config{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			Bucket:          cfg.AWS.ImagesBucket,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
			s3Client = nil
		} else {
			imageStore = s3Client
		}
	}
	imageProcessor := images.NewProcessor(imageStore, storage.BucketURL(cfg.AWS.ImagesBucket), logger)

	// Replaced images are deleted by a background worker when Redis and S3 are both up.
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if rdb != nil && s3Client != nil {
		jobQueue := queue.NewQueue(rdb.Client, logger)
		imageProcessor.UseQueue(jobQueue)
		go worker.NewImageCleaner(s3Client, jobQueue, logger).Run(workerCtx)
		logger.Info("image worker started")
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours, cfg.JWT.ResetExpireMinutes)

	// Repositories
	userRepo := users.NewRepository(pool)
	orgRepo := organizations.NewRepository(pool)
	larpRepo := larps.NewRepository(pool)
	newsletterRepo := newsletters.NewRepository(pool)
	resetRepo := auth.NewRepository(pool)

	// Mailing
	sender := mailing.Address{Email: cfg.Mailing.SenderEmail, Name: cfg.Mailing.SenderName}
	brevo := mailing.NewClient(mailing.Config{APIKey: cfg.Mailing.APIKey, BaseURL: cfg.Mailing.BaseURL}, logger)
	syncer := mailing.NewSyncer(brevo, userRepo, orgRepo, locker, mailing.SyncConfig{
		AdminListID: cfg.Mailing.AdminListID,
		FolderID:    cfg.Mailing.FolderID,
	}, logger)

	// Managers
	orgManager := organizations.NewManager(orgRepo, larpRepo, syncer, imageProcessor, logger)
	userManager := users.NewManager(userRepo, orgRepo, orgManager, syncer, utils.NewHasher(cfg.Auth.BcryptCost), logger)
	larpManager := larps.NewManager(larpRepo, orgRepo, imageProcessor, logger)
	newsletterManager := newsletters.NewManager(newsletterRepo, orgRepo, brevo, locker, newsletters.Campaign{
		PublicURL: cfg.Server.PublicURL,
		From:      sender,
	}, logger)

	authHandler := auth.NewHandler(userManager, resetRepo, mailing.NewResetMailer(brevo, sender), jwtService, cfg.Server.PublicURL, logger)

	router, err := server.NewRouter(server.Deps{
		JWT:                jwtService,
		Auth:               authHandler,
		Users:              userManager,
		Orgs:               orgManager,
		Larps:              larpManager,
		Newsletters:        newsletterManager,
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
		Logger:             logger,
		Quiet:              cfg.IsTest(),
	})
	if err != nil {
		logger.Fatal("router", zap.Error(err))
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}

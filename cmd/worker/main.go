// Package main runs the image cleanup worker on its own, for deployments where the API
// servers should not delete bucket objects themselves.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/larpcal/backend/config"
	"github.com/larpcal/backend/internal/worker"
	"github.com/larpcal/backend/pkg/queue"
	"github.com/larpcal/backend/pkg/redis"
	"github.com/larpcal/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := redis.NewClient(ctx, redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, logger)
	if err != nil {
		logger.Fatal("image worker needs redis", zap.Error(err))
	}
	defer rdb.Close()

	bucket, err := storage.NewS3(ctx, storage.S3Config{
		Region:          cfg.AWS.Region,
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
		Bucket:          cfg.AWS.ImagesBucket,
	}, logger)
	if err != nil {
		logger.Fatal("image worker needs s3", zap.Error(err))
	}

	cleaner := worker.NewImageCleaner(bucket, queue.NewQueue(rdb.Client, logger), logger)
	done := make(chan struct{})
	go func() {
		defer close(done)
		cleaner.Run(ctx)
	}()
	logger.Info("image worker started", zap.String("queue", queue.QueueImageCleanup))

	<-ctx.Done()
	// Run returns after the current job and at most one PollTimeout.
	<-done
	logger.Info("image worker stopped")
}

func newLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := cfg.Build()
	return logger
}

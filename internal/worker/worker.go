package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/larpcal/backend/pkg/queue"
)

// Jobs is the queue side of the worker. *queue.Queue implements it.
type Jobs interface {
	Dequeue(ctx context.Context, lists ...string) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// ObjectDeleter removes bucket objects. *storage.S3 implements it.
type ObjectDeleter interface {
	DeleteObjects(ctx context.Context, keys ...string) error
}

// ImageCleaner deletes replaced and orphaned image objects queued by the API.
type ImageCleaner struct {
	store   ObjectDeleter
	queue   Jobs
	backoff time.Duration
	logger  *zap.Logger
}

// NewImageCleaner creates an image cleanup worker.
func NewImageCleaner(store ObjectDeleter, q Jobs, logger *zap.Logger) *ImageCleaner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImageCleaner{store: store, queue: q, backoff: queue.RetryBackoff, logger: logger}
}

// Process executes one image cleanup job.
func (w *ImageCleaner) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeImageCleanup {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.ImageCleanupPayload
	if err := job.Decode(&payload); err != nil {
		return err
	}
	if len(payload.Keys) == 0 {
		return nil
	}
	if err := w.store.DeleteObjects(ctx, payload.Keys...); err != nil {
		return err
	}
	w.logger.Info("images deleted", zap.String("job_id", job.ID), zap.Strings("keys", payload.Keys))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error. It returns when ctx is done.
func (w *ImageCleaner) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("image worker stopping")
			return
		default:
		}

		job, err := w.queue.Dequeue(ctx, queue.QueueImageCleanup)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Warn("dequeue error", zap.Error(err))
			w.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		w.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := w.Process(ctx, job); err != nil {
			w.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if reErr := w.queue.Retry(ctx, job); reErr != nil {
				w.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			w.sleep(ctx)
		}
	}
}

func (w *ImageCleaner) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.backoff):
	}
}

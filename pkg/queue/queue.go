// Package queue is a small Redis list job queue. The API enqueues image cleanup work
// and the image worker drains it.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	QueueImageCleanup = "larpcal:jobs:images"
	QueueDLQ          = "larpcal:jobs:dlq"

	// MaxRetries counts attempts, the first one included.
	MaxRetries   = 3
	RetryBackoff = 10 * time.Second
	// PollTimeout bounds one blocking pop so consumers notice cancellation.
	PollTimeout = 5 * time.Second
)

// JobType identifies what a job's payload holds.
type JobType string

const JobTypeImageCleanup JobType = "image_cleanup"

// ImageCleanupPayload lists bucket keys of a replaced or deleted image set.
type ImageCleanupPayload struct {
	Keys []string `json:"keys"`
}

// Job is the envelope stored on a list.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Queue     string          `json:"queue"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// Decode unmarshals the payload into v.
func (j *Job) Decode(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", j.Type, err)
	}
	return nil
}

// Queue pushes and pops jobs on Redis lists.
type Queue struct {
	client *redis.Client
	logger *zap.Logger
}

func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

// Enqueue appends a new job to list.
func (q *Queue) Enqueue(ctx context.Context, list string, typ JobType, payload any) (*Job, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", typ, err)
	}
	job := &Job{
		ID:        uuid.NewString(),
		Type:      typ,
		Queue:     list,
		Payload:   body,
		CreatedAt: time.Now().UTC(),
	}
	if err := q.push(ctx, list, job); err != nil {
		return nil, err
	}
	q.logger.Debug("job enqueued", zap.String("job_id", job.ID), zap.String("type", string(typ)))
	return job, nil
}

// EnqueueImageCleanup schedules deletion of bucket keys. It satisfies images.CleanupQueue.
func (q *Queue) EnqueueImageCleanup(ctx context.Context, keys []string) error {
	_, err := q.Enqueue(ctx, QueueImageCleanup, JobTypeImageCleanup, ImageCleanupPayload{Keys: keys})
	return err
}

// Dequeue pops the next job from the first non-empty list, waiting up to PollTimeout.
// A nil job with a nil error means nothing usable arrived; unreadable entries are dropped.
func (q *Queue) Dequeue(ctx context.Context, lists ...string) (*Job, error) {
	res, err := q.client.BLPop(ctx, PollTimeout, lists...).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("pop %v: %w", lists, err)
	case len(res) != 2:
		return nil, nil
	}

	list, raw := res[0], res[1]
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		q.logger.Warn("dropping unreadable job", zap.String("queue", list), zap.Error(err))
		return nil, nil
	}
	if job.Queue == "" {
		job.Queue = list
	}
	return &job, nil
}

// Retry records a failed attempt. The job goes back on its own list until it has
// used MaxRetries attempts, then to QueueDLQ.
func (q *Queue) Retry(ctx context.Context, job *Job) error {
	job.Attempt++
	target := job.Queue
	if job.Attempt >= MaxRetries {
		target = QueueDLQ
	}
	if err := q.push(ctx, target, job); err != nil {
		return err
	}
	if target == QueueDLQ {
		q.logger.Warn("job dead-lettered", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	} else {
		q.logger.Info("job requeued", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	}
	return nil
}

func (q *Queue) push(ctx context.Context, list string, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	if err := q.client.RPush(ctx, list, raw).Err(); err != nil {
		return fmt.Errorf("push to %s: %w", list, err)
	}
	return nil
}

// Package broker dispatches workflow jobs through a Redis list. Producers
// LPUSH JSON-encoded jobs; the consumer BRPOPs them, so delivery order is
// FIFO and a job is handed to exactly one consumer.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/assethub/assethub/pkg/api"
	"github.com/assethub/assethub/pkg/observability"
	"github.com/assethub/assethub/pkg/storage"
)

const defaultQueueKey = "assethub:workflow_jobs"

// Handler processes one dequeued job. A returned error marks the job failed;
// the queue does not retry.
type Handler func(ctx context.Context, job *api.WorkflowJob) error

// Queue is the Redis-backed workflow job queue.
type Queue struct {
	client  *redis.Client
	key     string
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewQueue connects to Redis and verifies the connection. metrics may be nil.
func NewQueue(cfg storage.Config, logger *observability.Logger, metrics *observability.Metrics) (*Queue, error) {
	opts := &redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		PoolSize: cfg.RedisPoolSize,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewQueueWithClient(client, logger, metrics), nil
}

// NewQueueWithClient wraps an existing client. Used by tests.
func NewQueueWithClient(client *redis.Client, logger *observability.Logger, metrics *observability.Metrics) *Queue {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Queue{
		client:  client,
		key:     defaultQueueKey,
		logger:  logger,
		metrics: metrics,
	}
}

// Enqueue publishes a job to the queue.
func (q *Queue) Enqueue(ctx context.Context, job *api.WorkflowJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}

	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		if q.metrics != nil {
			q.metrics.QueuePublishErrors.Inc()
		}
		return fmt.Errorf("failed to publish job: %w", err)
	}

	if q.metrics != nil {
		q.metrics.QueuePublishTotal.WithLabelValues(job.Kind).Inc()
	}
	return nil
}

// Dequeue blocks up to timeout for the next job. Returns nil, nil when the
// timeout elapses with an empty queue.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*api.WorkflowJob, error) {
	result, err := q.client.BRPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue job: %w", err)
	}

	// BRPOP returns [key, value]
	var job api.WorkflowJob
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to decode job: %w", err)
	}
	return &job, nil
}

// Consume runs a dequeue loop until ctx is cancelled, invoking handler for
// each job. Handler errors are logged and counted; the loop keeps going.
func (q *Queue) Consume(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		job, err := q.Dequeue(ctx, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			q.logger.WithError(err).Error("queue dequeue failed")
			continue
		}
		if job == nil {
			continue
		}

		if q.metrics != nil {
			if depth, err := q.Depth(ctx); err == nil {
				q.metrics.QueueDepth.Set(float64(depth))
			}
		}

		if err := handler(ctx, job); err != nil {
			q.logger.WithError(err).
				WithField("job_id", job.ID).
				WithField("kind", job.Kind).
				Error("workflow job failed")
		}
	}
}

// Depth returns the number of queued jobs.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

// Ping checks Redis connectivity.
func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Client exposes the underlying connection for health probes.
func (q *Queue) Client() *redis.Client { return q.client }

// Close releases the connection pool.
func (q *Queue) Close() error {
	return q.client.Close()
}

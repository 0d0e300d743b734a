package cli

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"

	"github.com/mercadoleve/mercadoleve/internal/ocr"
	"github.com/mercadoleve/mercadoleve/jobs"
)

// Backend is what the commands need from the queue.
type Backend interface {
	EnqueueProcessBatch(ctx context.Context, req ocr.ProcessRequest) (ocr.EnqueuedTask, error)
	EnqueueSweep(ctx context.Context, maxAge time.Duration) (string, error)
	QueueStats(ctx context.Context) (jobs.QueueStats, error)
	Close() error
}

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    *jobs.Client
	inspector *asynq.Inspector
}

var _ Backend = (*JobsCLI)(nil)

// NewJobsCLI initialises the CLI helpers using the provided Redis address.
func NewJobsCLI(redisAddr string) (Backend, error) {
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	client, err := jobs.NewClient(opts)
	if err != nil {
		return nil, err
	}
	return &JobsCLI{client: client, inspector: asynq.NewInspector(opts)}, nil
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// EnqueueProcessBatch queues one batch run.
func (c *JobsCLI) EnqueueProcessBatch(ctx context.Context, req ocr.ProcessRequest) (ocr.EnqueuedTask, error) {
	if c == nil || c.client == nil {
		return ocr.EnqueuedTask{}, errors.New("jobs cli: client not configured")
	}
	return c.client.EnqueueProcessBatch(ctx, req)
}

// EnqueueSweep queues an immediate stale batch sweep.
func (c *JobsCLI) EnqueueSweep(ctx context.Context, maxAge time.Duration) (string, error) {
	if c == nil || c.client == nil {
		return "", errors.New("jobs cli: client not configured")
	}
	info, err := c.client.EnqueueSweepStale(ctx, maxAge)
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

// QueueStats reports the queue metrics for the default queue.
func (c *JobsCLI) QueueStats(ctx context.Context) (jobs.QueueStats, error) {
	if c == nil || c.inspector == nil {
		return jobs.QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	return jobs.FetchQueueStats(c.inspector)
}

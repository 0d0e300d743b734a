package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/mercadoleve/mercadoleve/internal/jobs"
	"github.com/mercadoleve/mercadoleve/internal/ocr"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// BatchProcessor runs one OCR batch.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, req ocr.ProcessRequest) (ocr.ProcessResult, error)
}

// StaleSweeper fails batches stuck in processing.
type StaleSweeper interface {
	FailStaleBatches(ctx context.Context, maxAge time.Duration) (int64, error)
}

// ProcessBatchJob handles TaskOCRProcessBatch.
type ProcessBatchJob struct {
	Processor BatchProcessor
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewProcessBatchJob wires dependencies for the batch handler.
func NewProcessBatchJob(processor BatchProcessor, logger *slog.Logger, metrics *jobmetrics.Metrics) *ProcessBatchJob {
	return &ProcessBatchJob{Processor: processor, Logger: logger, Metrics: metrics}
}

// Handle processes one queued batch. Request level failures are final and
// skip the retry machinery.
func (j *ProcessBatchJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Processor == nil {
		return errors.New("ocr batch: handler not configured")
	}
	var req ocr.ProcessRequest
	if err := json.Unmarshal(t.Payload(), &req); err != nil {
		return fmt.Errorf("ocr batch: decode payload: %v: %w", err, asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskOCRProcessBatch)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("batch_id", req.BatchID))
	logger.Info("starting ocr batch", slog.Int("images", len(req.ImageFiles)))

	result, err := j.Processor.ProcessBatch(ctx, req)
	if err != nil {
		resultErr = err
		logger.Error("ocr batch failed", slog.Any("error", err))
		if errors.Is(err, ocr.ErrInvalidRequest) || errors.Is(err, ocr.ErrMissingCredential) || errors.Is(err, ocr.ErrBatchNotFound) {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return resultErr
	}
	logger.Info("completed ocr batch",
		slog.Int("processed", result.ProcessedCount),
		slog.Int("total", result.TotalCount),
		slog.Int("errors", len(result.Errors)),
	)
	return resultErr
}

func (j *ProcessBatchJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskOCRProcessBatch))
	}
	return slog.Default().With(slog.String("job", TaskOCRProcessBatch))
}

func (j *ProcessBatchJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

// SweepStaleJob handles TaskOCRSweepStale.
type SweepStaleJob struct {
	Sweeper StaleSweeper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewSweepStaleJob wires dependencies for the sweep handler.
func NewSweepStaleJob(sweeper StaleSweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) *SweepStaleJob {
	return &SweepStaleJob{Sweeper: sweeper, Logger: logger, Metrics: metrics}
}

// Handle fails batches older than the configured age.
func (j *SweepStaleJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sweeper == nil {
		return errors.New("ocr sweep: handler not configured")
	}
	var payload SweepStalePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("ocr sweep: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.MaxAgeMinutes <= 0 {
		return fmt.Errorf("ocr sweep: max age %d minutes: %w", payload.MaxAgeMinutes, asynq.SkipRetry)
	}

	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskOCRSweepStale)
	n, err := j.Sweeper.FailStaleBatches(ctx, time.Duration(payload.MaxAgeMinutes)*time.Minute)
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if err != nil {
		logger.Error("sweep stale batches", slog.String("job", TaskOCRSweepStale), slog.Any("error", err))
		return tracker.End(err)
	}
	logger.Info("swept stale batches", slog.String("job", TaskOCRSweepStale), slog.Int64("batches", n))
	return tracker.End(nil)
}

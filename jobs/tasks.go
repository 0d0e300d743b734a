package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/mercadoleve/mercadoleve/internal/ocr"
	"github.com/mercadoleve/mercadoleve/internal/platform/storage"
	"github.com/mercadoleve/mercadoleve/internal/vision"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskOCRProcessBatch runs the OCR pipeline over one uploaded batch.
	TaskOCRProcessBatch = "ocr:process_batch"
	// TaskOCRSweepStale fails batches abandoned in the processing state.
	TaskOCRSweepStale = "ocr:sweep_stale"
)

// A batch run is bounded by its images: each costs at most one download and
// one vision call, done sequentially.
const (
	processBatchBase     = 2 * time.Minute
	processBatchPerImage = storage.DownloadTimeout + vision.CallTimeout
)

// NewProcessBatchTask builds the task for a batch. The batch id doubles as
// the task id so a batch cannot be queued twice while a run is pending.
// Runs are not retried: a rerun would append duplicate prices.
func NewProcessBatchTask(req ocr.ProcessRequest) (*asynq.Task, error) {
	batchID := strings.TrimSpace(req.BatchID)
	if batchID == "" {
		return nil, errors.New("jobs: batch id required")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	timeout := processBatchTimeout(len(req.ImageFiles))
	return asynq.NewTask(TaskOCRProcessBatch, body,
		asynq.Queue(QueueDefault),
		asynq.TaskID(processTaskID(batchID)),
		asynq.MaxRetry(0),
		asynq.Timeout(timeout),
		asynq.Retention(24*time.Hour),
	), nil
}

func processBatchTimeout(images int) time.Duration {
	return processBatchBase + time.Duration(images)*processBatchPerImage
}

func processTaskID(batchID string) string {
	return TaskOCRProcessBatch + ":" + batchID
}

// SweepStalePayload configures the stale batch sweep.
type SweepStalePayload struct {
	MaxAgeMinutes int `json:"max_age_minutes"`
}

// NewSweepStaleTask builds the periodic sweep task. The age travels in whole
// minutes, so anything under a minute is rejected.
func NewSweepStaleTask(maxAge time.Duration) (*asynq.Task, error) {
	if maxAge < time.Minute {
		return nil, fmt.Errorf("jobs: sweep age %s below one minute", maxAge)
	}
	body, err := json.Marshal(SweepStalePayload{MaxAgeMinutes: int(maxAge / time.Minute)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOCRSweepStale, body, asynq.Queue(QueueDefault)), nil
}

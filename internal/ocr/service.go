package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/mercadoleve/mercadoleve/internal/catalog"
	jobmetrics "github.com/mercadoleve/mercadoleve/internal/jobs"
	"github.com/mercadoleve/mercadoleve/internal/platform/storage"
	"github.com/mercadoleve/mercadoleve/internal/pricing"
)

const resolutionFailed = "failed"

// Repository persists batches and review items.
type Repository interface {
	CreateBatch(ctx context.Context, uploadedBy *string) (Batch, error)
	GetBatch(ctx context.Context, id uuid.UUID) (Batch, error)
	ListBatches(ctx context.Context, filters BatchListFilters) ([]Batch, error)
	SetBatchStatus(ctx context.Context, id uuid.UUID, status BatchStatus) error
	FinishBatch(ctx context.Context, id uuid.UUID, status BatchStatus, meta *BatchMeta) error
	FailStaleBatches(ctx context.Context, startedBefore time.Time) (int64, error)
	InsertReviewItem(ctx context.Context, item ReviewItem) error
	ListReviewItems(ctx context.Context, batchID uuid.UUID, limit int) ([]ReviewItem, error)
}

// BlobStore reads and writes batch images.
type BlobStore interface {
	Download(ctx context.Context, path string) (storage.Object, error)
	Upload(ctx context.Context, key string, body []byte, contentType string) error
}

// Extractor reads an image with the vision model.
type Extractor interface {
	Ready() error
	Extract(ctx context.Context, image []byte, contentType string) (string, error)
}

// Reconciler maps a candidate onto the catalog.
type Reconciler interface {
	Resolve(ctx context.Context, c catalog.Candidate) (catalog.Resolution, error)
}

// PriceRecorder appends price observations for a resolved item.
type PriceRecorder interface {
	Record(ctx context.Context, in pricing.RecordInput) (int, error)
}

// Invalidator drops derived data once new prices are written.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// ServiceConfig wires the orchestrator collaborators. Everything the run
// needs is passed here; nothing is read from the environment.
type ServiceConfig struct {
	Repository  Repository
	Blobs       BlobStore
	Extractor   Extractor
	Reconciler  Reconciler
	Prices      PriceRecorder
	Invalidator Invalidator
	Metrics     *jobmetrics.Metrics
	Logger      *slog.Logger
}

// Service runs OCR batches and serves the batch review surface.
type Service struct {
	repo        Repository
	blobs       BlobStore
	extractor   Extractor
	reconciler  Reconciler
	prices      PriceRecorder
	invalidator Invalidator
	metrics     *jobmetrics.Metrics
	logger      *slog.Logger
	validate    *validator.Validate
}

func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        cfg.Repository,
		blobs:       cfg.Blobs,
		extractor:   cfg.Extractor,
		reconciler:  cfg.Reconciler,
		prices:      cfg.Prices,
		invalidator: cfg.Invalidator,
		metrics:     cfg.Metrics,
		logger:      logger,
		validate:    newValidator(),
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks a request without touching any state.
func (s *Service) Validate(req ProcessRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidRequest, describeValidation(err))
	}
	if s.extractor == nil {
		return ErrMissingCredential
	}
	if err := s.extractor.Ready(); err != nil {
		return fmt.Errorf("%w: %v", ErrMissingCredential, err)
	}
	return nil
}

// ProcessBatch runs one batch end to end. Images are handled one at a time.
// A failing image is recorded and skipped; a failing item is logged and
// skipped. Only request level problems return an error, in which case the
// batch is at most marked as errored.
//
// Once validated, the run is detached from ctx cancellation: a started batch
// always runs to completion and leaves its review trail. Per call deadlines
// belong to the blob store and vision transports.
func (s *Service) ProcessBatch(ctx context.Context, req ProcessRequest) (ProcessResult, error) {
	if err := s.Validate(req); err != nil {
		s.markFailed(ctx, req.BatchID, err)
		return ProcessResult{}, err
	}
	ctx = context.WithoutCancel(ctx)
	batchID := uuid.MustParse(req.BatchID)
	supermarketID := uuid.MustParse(req.SupermarketID)
	logger := s.logger.With(
		slog.String("batch_id", batchID.String()),
		slog.String("supermarket_id", supermarketID.String()),
	)

	if err := s.repo.SetBatchStatus(ctx, batchID, StatusProcessing); err != nil {
		return ProcessResult{}, fmt.Errorf("ocr: mark batch processing: %w", err)
	}
	logger.Info("ocr batch started", slog.Int("images", len(req.ImageFiles)))

	run := batchRun{
		batchID:       batchID,
		supermarketID: supermarketID,
		logger:        logger,
	}
	result := ProcessResult{Success: true, TotalCount: len(req.ImageFiles)}
	for _, image := range req.ImageFiles {
		if err := s.processImage(ctx, &run, image.Path); err != nil {
			logger.Warn("ocr image failed", slog.String("path", image.Path), slog.Any("error", err))
			s.metrics.ImageProcessed("failed")
			result.Errors = append(result.Errors, ImageError{Path: image.Path, Error: err.Error()})
			continue
		}
		s.metrics.ImageProcessed("processed")
		result.ProcessedCount++
	}

	status := StatusError
	if result.ProcessedCount > 0 {
		status = StatusDone
	}
	meta := &BatchMeta{
		Errors:         result.Errors,
		ProcessedCount: result.ProcessedCount,
		TotalCount:     result.TotalCount,
		PricesRecorded: run.prices,
	}
	switch err := s.repo.FinishBatch(ctx, batchID, status, meta); {
	case errors.Is(err, ErrBatchNotProcessing):
		logger.Warn("ocr batch left processing during the run, status kept", slog.Any("error", err))
	case err != nil:
		logger.Error("ocr batch finalize failed", slog.Any("error", err))
	}
	if run.prices > 0 && s.invalidator != nil {
		if err := s.invalidator.Invalidate(ctx); err != nil {
			logger.Warn("pricing cache invalidation failed", slog.Any("error", err))
		}
	}

	logger.Info("ocr batch finished",
		slog.String("status", string(status)),
		slog.Int("processed", result.ProcessedCount),
		slog.Int("total", result.TotalCount),
		slog.Int("items", run.items),
		slog.Int("prices", run.prices),
	)
	return result, nil
}

type batchRun struct {
	batchID       uuid.UUID
	supermarketID uuid.UUID
	logger        *slog.Logger
	items         int
	prices        int
}

func (s *Service) processImage(ctx context.Context, run *batchRun, path string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ocr: panic while processing image: %v", r)
		}
	}()

	object, err := s.blobs.Download(ctx, path)
	if err != nil {
		return fmt.Errorf("download %s: %w", path, err)
	}
	raw, err := s.extractor.Extract(ctx, object.Data, imageContentType(object.ContentType, path))
	if err != nil {
		return err
	}
	items := ParseItems(raw)
	run.logger.Debug("ocr items parsed", slog.String("path", path), slog.Int("items", len(items)))
	for _, item := range items {
		s.processItem(ctx, run, path, item)
	}
	return nil
}

func (s *Service) processItem(ctx context.Context, run *batchRun, path string, item CandidateItem) {
	logger := run.logger.With(slog.String("path", path), slog.String("item", item.Name))
	meta := reviewMetaFor(item, path, run.supermarketID)
	review := ReviewItem{
		BatchID:    run.batchID,
		RawText:    item.RawText(),
		Confidence: item.Confidence,
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("ocr item panicked", slog.Any("panic", r))
			meta.Resolution = resolutionFailed
			meta.Error = fmt.Sprint(r)
		}
		review.Meta = meta
		if err := s.repo.InsertReviewItem(ctx, review); err != nil {
			logger.Error("ocr review item insert failed", slog.Any("error", err))
			return
		}
		run.items++
	}()

	resolution, err := s.reconciler.Resolve(ctx, candidateFor(item))
	if err != nil {
		logger.Warn("ocr item reconciliation failed", slog.Any("error", err))
		s.metrics.ItemResolved(resolutionFailed)
		meta.Resolution = resolutionFailed
		meta.Error = err.Error()
		return
	}
	meta.Resolution = string(resolution.Method)
	s.metrics.ItemResolved(string(resolution.Method))
	if !resolution.Resolved() {
		return
	}

	productID := resolution.ProductID
	review.MatchedProductID = &productID
	written, err := s.prices.Record(ctx, pricing.RecordInput{
		ProductID:       productID,
		SupermarketID:   run.supermarketID,
		BatchID:         run.batchID,
		UnitSize:        deref(item.UnitSize),
		RetailPrice:     item.RetailPrice,
		WholesalePrice:  item.WholesalePrice,
		MinWholesaleQty: item.MinWholesaleQty,
	})
	meta.PricesRecorded = written
	run.prices += written
	if err != nil {
		logger.Warn("ocr price recording failed", slog.Any("error", err))
		meta.Error = err.Error()
	}
}

// markFailed writes the error status when the request names a parseable
// batch. Failures here are only logged.
func (s *Service) markFailed(ctx context.Context, rawBatchID string, cause error) {
	id, err := uuid.Parse(strings.TrimSpace(rawBatchID))
	if err != nil || s.repo == nil {
		return
	}
	if err := s.repo.SetBatchStatus(context.WithoutCancel(ctx), id, StatusError); err != nil {
		s.logger.Warn("ocr batch error status not written",
			slog.String("batch_id", id.String()),
			slog.Any("cause", cause),
			slog.Any("error", err),
		)
	}
}

func candidateFor(item CandidateItem) catalog.Candidate {
	return catalog.Candidate{
		Name:       item.Name,
		Brand:      deref(item.Brand),
		EAN:        deref(item.EAN),
		Unit:       deref(item.UnitSize),
		Confidence: item.Confidence,
	}
}

func reviewMetaFor(item CandidateItem, path string, supermarketID uuid.UUID) ReviewMeta {
	return ReviewMeta{
		ImagePath:       path,
		SupermarketID:   supermarketID.String(),
		Name:            item.Name,
		Brand:           item.Brand,
		EAN:             item.EAN,
		UnitSize:        item.UnitSize,
		RetailPrice:     item.RetailPrice,
		WholesalePrice:  item.WholesalePrice,
		MinWholesaleQty: item.MinWholesaleQty,
	}
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		parts = append(parts, fmt.Sprintf("%s failed %s", field, fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

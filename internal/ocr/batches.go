package ocr

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultBatchLimit = 20
	defaultItemLimit  = 50
	maxListLimit      = 200
)

func init() {
	ensureMimeType(".webp", "image/webp")
	ensureMimeType(".heic", "image/heic")
}

func ensureMimeType(ext, typ string) {
	if mime.TypeByExtension(ext) != "" {
		return
	}
	if err := mime.AddExtensionType(ext, typ); err != nil {
		log.Printf("ocr: failed to register MIME type for %s: %v", ext, err)
	}
}

// CreateBatch stores the uploaded images under a new batch and returns the
// request body needed to process it.
func (s *Service) CreateBatch(ctx context.Context, uploadedBy *string, uploads []Upload) (CreatedBatch, error) {
	if len(uploads) == 0 {
		return CreatedBatch{}, fmt.Errorf("%w: at least one image is required", ErrInvalidRequest)
	}
	for i, u := range uploads {
		if len(u.Data) == 0 {
			return CreatedBatch{}, fmt.Errorf("%w: image %d is empty", ErrInvalidRequest, i)
		}
		if !strings.HasPrefix(imageContentType(u.ContentType, u.Filename), "image/") {
			return CreatedBatch{}, fmt.Errorf("%w: %s is not an image", ErrInvalidRequest, u.Filename)
		}
	}

	batch, err := s.repo.CreateBatch(ctx, uploadedBy)
	if err != nil {
		return CreatedBatch{}, fmt.Errorf("ocr: create batch: %w", err)
	}
	created := CreatedBatch{BatchID: batch.ID, ImageFiles: make([]ImageFile, 0, len(uploads))}
	for _, u := range uploads {
		contentType := imageContentType(u.ContentType, u.Filename)
		key := fmt.Sprintf("%s/%s%s", batch.ID, uuid.NewString(), imageExtension(contentType, u.Filename))
		if err := s.blobs.Upload(ctx, key, u.Data, contentType); err != nil {
			s.markFailed(ctx, batch.ID.String(), err)
			return CreatedBatch{}, fmt.Errorf("ocr: upload %s: %w", u.Filename, err)
		}
		created.ImageFiles = append(created.ImageFiles, ImageFile{Path: key})
	}
	s.logger.Info("ocr batch uploaded",
		slog.String("batch_id", batch.ID.String()),
		slog.Int("images", len(created.ImageFiles)),
	)
	return created, nil
}

// ListBatches returns the most recent batches first.
func (s *Service) ListBatches(ctx context.Context, filters BatchListFilters) ([]Batch, error) {
	filters.Limit = clampLimit(filters.Limit, defaultBatchLimit)
	return s.repo.ListBatches(ctx, filters)
}

func (s *Service) GetBatch(ctx context.Context, id uuid.UUID) (Batch, error) {
	return s.repo.GetBatch(ctx, id)
}

// ListItems returns the review items of a batch.
func (s *Service) ListItems(ctx context.Context, batchID uuid.UUID, limit int) ([]ReviewItem, error) {
	if _, err := s.repo.GetBatch(ctx, batchID); err != nil {
		return nil, err
	}
	return s.repo.ListReviewItems(ctx, batchID, clampLimit(limit, defaultItemLimit))
}

// FailStaleBatches moves batches left in processing for longer than maxAge
// to the error status. A worker that died mid-run leaves such batches behind.
func (s *Service) FailStaleBatches(ctx context.Context, maxAge time.Duration) (int64, error) {
	if maxAge <= 0 {
		return 0, fmt.Errorf("%w: max age must be positive", ErrInvalidRequest)
	}
	n, err := s.repo.FailStaleBatches(ctx, time.Now().Add(-maxAge))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Warn("ocr stale batches failed", slog.Int64("batches", n), slog.Duration("max_age", maxAge))
	}
	return n, nil
}

func clampLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

// imageContentType prefers the stored type and falls back to the extension.
func imageContentType(contentType, name string) string {
	if ct, _, err := mime.ParseMediaType(contentType); err == nil && ct != "application/octet-stream" {
		return ct
	}
	if byExt := mime.TypeByExtension(strings.ToLower(path.Ext(name))); byExt != "" {
		ct, _, _ := mime.ParseMediaType(byExt)
		return ct
	}
	return "image/jpeg"
}

func imageExtension(contentType, name string) string {
	if ext := strings.ToLower(path.Ext(name)); ext != "" {
		return ext
	}
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	}
	if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
		return exts[0]
	}
	return ""
}

// sniffContentType detects the type of an upload whose header is missing.
func sniffContentType(data []byte) string {
	return http.DetectContentType(data)
}

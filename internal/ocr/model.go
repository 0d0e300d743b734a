// Package ocr ingests shelf and flyer photos: it extracts candidate items
// with a vision model, reconciles them against the catalog, records prices
// and leaves a review trail per batch.
package ocr

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mercadoleve/mercadoleve/internal/platform/httpx"
)

var (
	// ErrInvalidRequest indicates a malformed processing request.
	ErrInvalidRequest = fmt.Errorf("ocr: invalid request: %w", httpx.ErrValidation)
	// ErrMissingCredential indicates the vision model cannot be called.
	ErrMissingCredential = errors.New("ocr: vision credential not configured")
	// ErrBatchNotFound indicates the batch does not exist.
	ErrBatchNotFound = fmt.Errorf("ocr: batch %w", httpx.ErrNotFound)
	// ErrBatchNotProcessing indicates the batch left the processing state
	// before the run finished, usually because the stale sweep failed it.
	ErrBatchNotProcessing = fmt.Errorf("ocr: batch no longer processing: %w", httpx.ErrConflict)
)

// BatchStatus is the lifecycle state of an upload batch.
type BatchStatus string

const (
	StatusUploaded   BatchStatus = "uploaded"
	StatusProcessing BatchStatus = "processing"
	StatusDone       BatchStatus = "done"
	StatusError      BatchStatus = "error"
)

// Batch is an ocr_batch row.
type Batch struct {
	ID                  uuid.UUID   `json:"id"`
	Status              BatchStatus `json:"status"`
	UploadedBy          *string     `json:"uploaded_by,omitempty"`
	CreatedAt           time.Time   `json:"created_at"`
	ProcessingStartedAt *time.Time  `json:"processing_started_at,omitempty"`
	Meta                *BatchMeta  `json:"meta,omitempty"`
}

// BatchMeta is stored in ocr_batch.meta once processing finishes.
type BatchMeta struct {
	Errors         []ImageError `json:"errors,omitempty"`
	ProcessedCount int          `json:"processed_count"`
	TotalCount     int          `json:"total_count"`
	PricesRecorded int          `json:"prices_recorded"`
}

// ImageError records why one image of a batch was skipped.
type ImageError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// CandidateItem is one product read from an image. Optional fields are nil
// when the model did not supply a usable value.
type CandidateItem struct {
	Name            string   `json:"name"`
	Brand           *string  `json:"brand"`
	EAN             *string  `json:"ean"`
	UnitSize        *string  `json:"unit_size"`
	RetailPrice     *float64 `json:"retail_price"`
	WholesalePrice  *float64 `json:"wholesale_price"`
	MinWholesaleQty *int     `json:"min_wholesale_qty"`
	Confidence      float64  `json:"confidence"`
}

// RawText is the human readable label stored on the review item.
func (c CandidateItem) RawText() string {
	text := c.Name
	if c.Brand != nil {
		text += " " + *c.Brand
	}
	return strings.TrimSpace(text)
}

// ReviewItem is an ocr_item row.
type ReviewItem struct {
	ID               uuid.UUID  `json:"id"`
	BatchID          uuid.UUID  `json:"batch_id"`
	RawText          string     `json:"raw_text"`
	Confidence       float64    `json:"confidence"`
	MatchedProductID *uuid.UUID `json:"matched_product_id"`
	Meta             ReviewMeta `json:"meta"`
	CreatedAt        time.Time  `json:"created_at"`

	// Populated on reads when the item is matched.
	ProductName  *string `json:"product_name,omitempty"`
	ProductBrand *string `json:"product_brand,omitempty"`
}

// ReviewMeta keeps every extracted field next to where it came from.
type ReviewMeta struct {
	ImagePath       string   `json:"image_path"`
	SupermarketID   string   `json:"supermarket_id"`
	Resolution      string   `json:"resolution"`
	Name            string   `json:"extracted_name"`
	Brand           *string  `json:"extracted_brand"`
	EAN             *string  `json:"extracted_ean"`
	UnitSize        *string  `json:"extracted_unit_size"`
	RetailPrice     *float64 `json:"extracted_retail_price"`
	WholesalePrice  *float64 `json:"extracted_wholesale_price"`
	MinWholesaleQty *int     `json:"extracted_min_wholesale_qty"`
	PricesRecorded  int      `json:"prices_recorded"`
	Error           string   `json:"error,omitempty"`
}

// ImageFile references an uploaded image by storage path.
type ImageFile struct {
	Path string `json:"path" validate:"required"`
}

// ProcessRequest is the body accepted by the processing endpoints.
type ProcessRequest struct {
	BatchID       string      `json:"batchId" validate:"required,uuid"`
	ImageFiles    []ImageFile `json:"imageFiles" validate:"required,min=1,dive"`
	SupermarketID string      `json:"supermarketId" validate:"required,uuid"`
}

// ProcessResult summarises one batch run.
type ProcessResult struct {
	Success        bool         `json:"success"`
	ProcessedCount int          `json:"processedCount"`
	TotalCount     int          `json:"totalCount"`
	Errors         []ImageError `json:"errors,omitempty"`
}

// BatchListFilters narrows batch listings.
type BatchListFilters struct {
	Limit int
}

// Upload is one image received for a new batch.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// CreatedBatch is returned after a batch and its images are stored.
type CreatedBatch struct {
	BatchID    uuid.UUID   `json:"batchId"`
	ImageFiles []ImageFile `json:"imageFiles"`
}

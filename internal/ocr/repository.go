package ocr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const batchColumns = `id, COALESCE(status, 'uploaded'), uploaded_by::text, created_at, processing_started_at, meta`

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a PostgreSQL backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) CreateBatch(ctx context.Context, uploadedBy *string) (Batch, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO ocr_batch (status, uploaded_by)
		VALUES ($1, $2::uuid) RETURNING `+batchColumns, string(StatusUploaded), uploadedBy)
	batch, err := scanBatch(row)
	if err != nil {
		return Batch{}, fmt.Errorf("ocr: insert batch: %w", err)
	}
	return batch, nil
}

func (r *repository) GetBatch(ctx context.Context, id uuid.UUID) (Batch, error) {
	return scanBatch(r.pool.QueryRow(ctx, `SELECT `+batchColumns+` FROM ocr_batch WHERE id = $1`, id))
}

func (r *repository) ListBatches(ctx context.Context, filters BatchListFilters) ([]Batch, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+batchColumns+` FROM ocr_batch
		ORDER BY created_at DESC, id DESC LIMIT $1`, filters.Limit)
	if err != nil {
		return nil, fmt.Errorf("ocr: list batches: %w", err)
	}
	defer rows.Close()
	var batches []Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

func (r *repository) SetBatchStatus(ctx context.Context, id uuid.UUID, status BatchStatus) error {
	tag, err := r.pool.Exec(ctx, `UPDATE ocr_batch SET status = $2,
		processing_started_at = CASE WHEN $2 = $3 THEN now() ELSE processing_started_at END
		WHERE id = $1`, id, string(status), string(StatusProcessing))
	if err != nil {
		return fmt.Errorf("ocr: update batch status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBatchNotFound
	}
	return nil
}

// FinishBatch always stores meta but only moves a batch that is still
// processing; a batch failed by the sweep keeps its error status.
func (r *repository) FinishBatch(ctx context.Context, id uuid.UUID, status BatchStatus, meta *BatchMeta) error {
	var current string
	err := r.pool.QueryRow(ctx, `UPDATE ocr_batch SET meta = $3,
		status = CASE WHEN status = $4 THEN $2 ELSE status END
		WHERE id = $1 RETURNING status`, id, string(status), meta, string(StatusProcessing)).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrBatchNotFound
	}
	if err != nil {
		return fmt.Errorf("ocr: finish batch: %w", err)
	}
	if current != string(status) {
		return fmt.Errorf("%w: status is %s", ErrBatchNotProcessing, current)
	}
	return nil
}

func (r *repository) FailStaleBatches(ctx context.Context, startedBefore time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE ocr_batch SET status = $1
		WHERE status = $2 AND COALESCE(processing_started_at, created_at) < $3`, string(StatusError), string(StatusProcessing), startedBefore)
	if err != nil {
		return 0, fmt.Errorf("ocr: fail stale batches: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *repository) InsertReviewItem(ctx context.Context, item ReviewItem) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO ocr_item (batch_id, raw_text, confidence, matched_product_id, meta)
		VALUES ($1, $2, $3, $4, $5)`,
		item.BatchID, item.RawText, item.Confidence, item.MatchedProductID, item.Meta,
	)
	if err != nil {
		return fmt.Errorf("ocr: insert review item: %w", err)
	}
	return nil
}

func (r *repository) ListReviewItems(ctx context.Context, batchID uuid.UUID, limit int) ([]ReviewItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT i.id, i.batch_id, COALESCE(i.raw_text, ''), COALESCE(i.confidence, 0),
		i.matched_product_id, COALESCE(i.meta, '{}'::jsonb), i.created_at, p.name, p.brand
		FROM ocr_item i
		LEFT JOIN product_master p ON p.id = i.matched_product_id
		WHERE i.batch_id = $1
		ORDER BY i.created_at ASC, i.id ASC
		LIMIT $2`, batchID, limit)
	if err != nil {
		return nil, fmt.Errorf("ocr: list review items: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (ReviewItem, error) {
		var it ReviewItem
		err := row.Scan(&it.ID, &it.BatchID, &it.RawText, &it.Confidence, &it.MatchedProductID,
			&it.Meta, &it.CreatedAt, &it.ProductName, &it.ProductBrand)
		return it, err
	})
}

func scanBatch(row pgx.Row) (Batch, error) {
	var (
		b      Batch
		status string
	)
	err := row.Scan(&b.ID, &status, &b.UploadedBy, &b.CreatedAt, &b.ProcessingStartedAt, &b.Meta)
	if errors.Is(err, pgx.ErrNoRows) {
		return Batch{}, ErrBatchNotFound
	}
	if err != nil {
		return Batch{}, fmt.Errorf("ocr: scan batch: %w", err)
	}
	b.Status = BatchStatus(status)
	return b, nil
}

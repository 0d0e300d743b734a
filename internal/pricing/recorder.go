package pricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Recorder turns extracted prices into observations. It never updates
// existing rows, so re-running a batch appends duplicates.
type Recorder struct {
	store    ObservationStore
	now      func() time.Time
	logger   *slog.Logger
	observer func(PriceType)
}

// RecorderOption customises a Recorder.
type RecorderOption func(*Recorder)

// WithClock overrides the capture timestamp source.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets the recorder logger.
func WithLogger(logger *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithObserver registers a callback run after every written row.
func WithObserver(fn func(PriceType)) RecorderOption {
	return func(r *Recorder) {
		r.observer = fn
	}
}

func NewRecorder(store ObservationStore, opts ...RecorderOption) *Recorder {
	r := &Recorder{store: store, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record writes a retail row when a retail price is present and an
// independent wholesale row when both the wholesale price and its minimum
// quantity are present. It returns how many rows were written; a failed
// insert does not prevent the other one.
func (r *Recorder) Record(ctx context.Context, in RecordInput) (int, error) {
	if in.ProductID == uuid.Nil || in.SupermarketID == uuid.Nil {
		return 0, errors.New("pricing: product and supermarket are required")
	}
	capturedAt := r.now().UTC()
	var unitSize *string
	if u := strings.TrimSpace(in.UnitSize); u != "" {
		unitSize = &u
	}

	var (
		written int
		errs    []error
	)
	if price, ok := positivePrice(in.RetailPrice); ok {
		obs := Observation{
			ProductID:     in.ProductID,
			SupermarketID: in.SupermarketID,
			BatchID:       in.BatchID,
			Price:         price,
			PriceType:     PriceRetail,
			MinQuantity:   1,
			Source:        SourceOCR,
			UnitSize:      unitSize,
			CapturedAt:    capturedAt,
		}
		if err := r.insert(ctx, obs); err != nil {
			errs = append(errs, err)
		} else {
			written++
		}
	}
	if price, ok := positivePrice(in.WholesalePrice); ok && in.MinWholesaleQty != nil && *in.MinWholesaleQty > 0 {
		obs := Observation{
			ProductID:     in.ProductID,
			SupermarketID: in.SupermarketID,
			BatchID:       in.BatchID,
			Price:         price,
			PriceType:     PriceWholesale,
			MinQuantity:   *in.MinWholesaleQty,
			Source:        SourceOCR,
			UnitSize:      unitSize,
			CapturedAt:    capturedAt,
		}
		if err := r.insert(ctx, obs); err != nil {
			errs = append(errs, err)
		} else {
			written++
		}
	}
	return written, errors.Join(errs...)
}

func (r *Recorder) insert(ctx context.Context, obs Observation) error {
	if !obs.PriceType.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidPriceType, obs.PriceType)
	}
	if err := r.store.InsertObservation(ctx, obs); err != nil {
		return fmt.Errorf("pricing: insert %s price: %w", obs.PriceType, err)
	}
	r.logger.Debug("price recorded",
		slog.String("product_id", obs.ProductID.String()),
		slog.String("price_type", string(obs.PriceType)),
		slog.String("price", obs.Price.String()),
	)
	if r.observer != nil {
		r.observer(obs.PriceType)
	}
	return nil
}

// positivePrice converts an extracted price exactly, using the shortest
// decimal that round-trips the float. Any finite value above zero is kept,
// however small.
func positivePrice(v *float64) (decimal.Decimal, bool) {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) || *v <= 0 {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(*v), true
}

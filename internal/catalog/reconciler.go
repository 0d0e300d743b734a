package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// DefaultAutoCreateConfidence is the minimum candidate confidence required
// before an unmatched candidate becomes a new catalog product.
const DefaultAutoCreateConfidence = 0.7

const defaultSearchLimit = 50

// ReconcilerConfig tunes reconciliation policy.
type ReconcilerConfig struct {
	// AutoCreateConfidence is the creation threshold; nil means
	// DefaultAutoCreateConfidence. Zero creates every named candidate.
	AutoCreateConfidence *float64
	SearchLimit          int
	Logger               *slog.Logger
}

// Reconciler maps extracted candidates onto catalog products.
type Reconciler struct {
	repo        Repository
	threshold   float64
	searchLimit int
	logger      *slog.Logger
}

// NewReconciler constructs a Reconciler.
func NewReconciler(repo Repository, cfg ReconcilerConfig) *Reconciler {
	threshold := DefaultAutoCreateConfidence
	if cfg.AutoCreateConfidence != nil {
		threshold = *cfg.AutoCreateConfidence
	}
	limit := cfg.SearchLimit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{repo: repo, threshold: threshold, searchLimit: limit, logger: logger}
}

// Threshold returns the auto-create confidence in effect.
func (r *Reconciler) Threshold() float64 {
	return r.threshold
}

// Resolve returns the product a candidate refers to. Rules run in order:
// barcode, then name with brand preference, then creation when the
// candidate is confident enough. Backfill failures are logged, not returned.
func (r *Reconciler) Resolve(ctx context.Context, c Candidate) (Resolution, error) {
	unresolved := Resolution{Method: MethodUnresolved}
	ean := strings.TrimSpace(c.EAN)
	unit := strings.TrimSpace(c.Unit)

	if ValidEAN(ean) {
		product, err := r.repo.FindByEAN(ctx, ean)
		switch {
		case err == nil:
			if isBlank(product.Unit) && unit != "" {
				if err := r.repo.SetUnit(ctx, product.ID, unit); err != nil {
					r.logger.Warn("catalog unit backfill failed", slog.String("product_id", product.ID.String()), slog.Any("error", err))
				}
			}
			return Resolution{ProductID: product.ID, Method: MethodEAN}, nil
		case !errors.Is(err, ErrNotFound):
			return unresolved, fmt.Errorf("catalog: resolve by ean: %w", err)
		}
	} else {
		ean = ""
	}

	name := Normalize(c.Name)
	if name == "" {
		return unresolved, nil
	}

	product, ok, err := r.matchByName(ctx, c.Name, c.Brand)
	if err != nil {
		return unresolved, err
	}
	if ok {
		if isBlank(product.EAN) && ean != "" {
			if err := r.repo.BackfillIdentity(ctx, product.ID, ean, optionalString(unit)); err != nil {
				r.logger.Warn("catalog identity backfill failed", slog.String("product_id", product.ID.String()), slog.Any("error", err))
			}
		}
		return Resolution{ProductID: product.ID, Method: MethodName}, nil
	}

	if c.Confidence < r.threshold {
		return unresolved, nil
	}
	return r.create(ctx, c, ean, unit)
}

func (r *Reconciler) matchByName(ctx context.Context, rawName, rawBrand string) (Product, bool, error) {
	matches, err := r.repo.SearchByName(ctx, strings.TrimSpace(rawName), r.searchLimit)
	if err != nil {
		return Product{}, false, fmt.Errorf("catalog: resolve by name: %w", err)
	}
	filtered := matches[:0:0]
	for _, p := range matches {
		if ContainsFold(p.Name, rawName) {
			filtered = append(filtered, p)
		}
	}
	if len(filtered) == 0 {
		return Product{}, false, nil
	}
	if Normalize(rawBrand) != "" {
		for _, p := range filtered {
			if p.Brand != nil && ContainsFold(*p.Brand, rawBrand) {
				return p, true, nil
			}
		}
	}
	return filtered[0], true, nil
}

func (r *Reconciler) create(ctx context.Context, c Candidate, ean, unit string) (Resolution, error) {
	product := Product{
		Name:  strings.TrimSpace(c.Name),
		Brand: optionalString(c.Brand),
		EAN:   optionalString(ean),
		Unit:  optionalString(unit),
	}
	created, err := r.repo.Create(ctx, product)
	if errors.Is(err, ErrDuplicateEAN) && ean != "" {
		// Another batch inserted the same barcode between lookup and insert.
		existing, findErr := r.repo.FindByEAN(ctx, ean)
		if findErr != nil {
			return Resolution{Method: MethodUnresolved}, fmt.Errorf("catalog: reread after duplicate ean: %w", findErr)
		}
		return Resolution{ProductID: existing.ID, Method: MethodEAN}, nil
	}
	if err != nil {
		return Resolution{Method: MethodUnresolved}, fmt.Errorf("catalog: create product: %w", err)
	}
	if created.ID == uuid.Nil {
		return Resolution{Method: MethodUnresolved}, errors.New("catalog: create product returned no id")
	}
	r.logger.Info("catalog product created",
		slog.String("product_id", created.ID.String()),
		slog.String("name", created.Name),
	)
	return Resolution{ProductID: created.ID, Method: MethodCreated}, nil
}

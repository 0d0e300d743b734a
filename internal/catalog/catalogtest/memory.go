// Package catalogtest provides an in-memory catalog repository for tests.
package catalogtest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mercadoleve/mercadoleve/internal/catalog"
)

var _ catalog.Repository = (*Repository)(nil)

// Repository keeps products in memory and enforces EAN uniqueness like the
// partial unique index in PostgreSQL.
type Repository struct {
	mu       sync.Mutex
	products map[uuid.UUID]catalog.Product
	clock    time.Time

	// CreateErr, when set, is returned by the next Create call.
	CreateErr error
	// BackfillErr is returned by every BackfillIdentity call when set.
	BackfillErr error
	// BeforeCreate runs before the uniqueness check, letting tests simulate a
	// concurrent insert.
	BeforeCreate func(r *Repository)

	Creates   int
	Backfills int
}

func New() *Repository {
	return &Repository{
		products: make(map[uuid.UUID]catalog.Product),
		clock:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Seed stores a product as-is, assigning an id and creation time if missing.
func (r *Repository) Seed(p catalog.Product) catalog.Product {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertLocked(p)
}

// Product returns a stored product.
func (r *Repository) Product(id uuid.UUID) (catalog.Product, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	return p, ok
}

// Len returns the number of stored products.
func (r *Repository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.products)
}

func (r *Repository) insertLocked(p catalog.Product) catalog.Product {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		r.clock = r.clock.Add(time.Second)
		p.CreatedAt = r.clock
	}
	r.products[p.ID] = p
	return p
}

func (r *Repository) sortedLocked() []catalog.Product {
	out := make([]catalog.Product, 0, len(r.products))
	for _, p := range r.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *Repository) List(_ context.Context, filters catalog.ListFilters) ([]catalog.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []catalog.Product
	for _, p := range r.sortedLocked() {
		if filters.Search != "" && !catalog.ContainsFold(p.Name, filters.Search) {
			continue
		}
		out = append(out, p)
		if filters.Limit > 0 && len(out) == filters.Limit {
			break
		}
	}
	return out, nil
}

func (r *Repository) Get(_ context.Context, id uuid.UUID) (catalog.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return catalog.Product{}, catalog.ErrNotFound
	}
	return p, nil
}

func (r *Repository) FindByEAN(_ context.Context, ean string) (catalog.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.sortedLocked() {
		if p.EAN != nil && *p.EAN == ean {
			return p, nil
		}
	}
	return catalog.Product{}, catalog.ErrNotFound
}

// SearchByName mimics ILIKE with a simple lower-case contains.
func (r *Repository) SearchByName(_ context.Context, fragment string, limit int) ([]catalog.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	needle := strings.ToLower(strings.TrimSpace(fragment))
	var out []catalog.Product
	for _, p := range r.sortedLocked() {
		if strings.Contains(strings.ToLower(p.Name), needle) {
			out = append(out, p)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *Repository) Create(_ context.Context, p catalog.Product) (catalog.Product, error) {
	if r.BeforeCreate != nil {
		hook := r.BeforeCreate
		r.BeforeCreate = nil
		hook(r)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.CreateErr; err != nil {
		r.CreateErr = nil
		return catalog.Product{}, err
	}
	if p.EAN != nil && r.eanTakenLocked(*p.EAN, uuid.Nil) {
		return catalog.Product{}, catalog.ErrDuplicateEAN
	}
	r.Creates++
	p.ID = uuid.Nil
	p.CreatedAt = time.Time{}
	return r.insertLocked(p), nil
}

func (r *Repository) SetUnit(_ context.Context, id uuid.UUID, unit string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return catalog.ErrNotFound
	}
	if p.Unit == nil || *p.Unit == "" {
		p.Unit = &unit
		r.products[id] = p
	}
	return nil
}

func (r *Repository) BackfillIdentity(_ context.Context, id uuid.UUID, ean string, unit *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.BackfillErr != nil {
		return r.BackfillErr
	}
	p, ok := r.products[id]
	if !ok {
		return catalog.ErrNotFound
	}
	if p.EAN != nil && *p.EAN != "" {
		return nil
	}
	if r.eanTakenLocked(ean, id) {
		return catalog.ErrDuplicateEAN
	}
	p.EAN = &ean
	if (p.Unit == nil || *p.Unit == "") && unit != nil {
		p.Unit = unit
	}
	r.products[id] = p
	r.Backfills++
	return nil
}

func (r *Repository) eanTakenLocked(ean string, except uuid.UUID) bool {
	for id, p := range r.products {
		if id != except && p.EAN != nil && *p.EAN == ean {
			return true
		}
	}
	return false
}

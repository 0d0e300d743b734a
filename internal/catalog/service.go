package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mercadoleve/mercadoleve/internal/platform/httpx"
)

// Service exposes catalog reads for the review surface.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters ListFilters) ([]Product, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (Product, error) {
	if id == uuid.Nil {
		return Product{}, fmt.Errorf("catalog: invalid product id: %w", httpx.ErrValidation)
	}
	return s.repo.Get(ctx, id)
}

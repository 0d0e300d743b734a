package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/mercadoleve/mercadoleve/internal/platform/httpx"
)

// Service answers list comparisons through the cache, collapsing identical
// concurrent loads into one database call.
type Service struct {
	queries Queries
	cache   *Cache
	logger  *slog.Logger
	group   singleflight.Group
}

func NewService(queries Queries, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{queries: queries, cache: cache, logger: logger}
}

// Totals ranks supermarkets by the total cost of the list.
func (s *Service) Totals(ctx context.Context, listID uuid.UUID) ([]MarketTotal, error) {
	if listID == uuid.Nil {
		return nil, invalidID("list")
	}
	var out []MarketTotal
	err := s.load(ctx, &out, func(ctx context.Context) (any, error) {
		return s.queries.CalculateTotals(ctx, listID)
	}, "totals", listID.String())
	return out, err
}

// Compare lines up the list between two supermarkets item by item.
func (s *Service) Compare(ctx context.Context, listID, marketA, marketB uuid.UUID) ([]MarketComparison, error) {
	if listID == uuid.Nil {
		return nil, invalidID("list")
	}
	if marketA == uuid.Nil || marketB == uuid.Nil {
		return nil, invalidID("supermarket")
	}
	var out []MarketComparison
	err := s.load(ctx, &out, func(ctx context.Context) (any, error) {
		return s.queries.CompareTwoMarkets(ctx, listID, marketA, marketB)
	}, "compare", listID.String(), marketA.String(), marketB.String())
	return out, err
}

func (s *Service) Found(ctx context.Context, listID, supermarketID uuid.UUID) ([]FoundProduct, error) {
	if listID == uuid.Nil || supermarketID == uuid.Nil {
		return nil, invalidID("list or supermarket")
	}
	var out []FoundProduct
	err := s.load(ctx, &out, func(ctx context.Context) (any, error) {
		return s.queries.FoundProducts(ctx, listID, supermarketID)
	}, "found", listID.String(), supermarketID.String())
	return out, err
}

func (s *Service) Missing(ctx context.Context, listID, supermarketID uuid.UUID) ([]MissingProduct, error) {
	if listID == uuid.Nil || supermarketID == uuid.Nil {
		return nil, invalidID("list or supermarket")
	}
	var out []MissingProduct
	err := s.load(ctx, &out, func(ctx context.Context) (any, error) {
		return s.queries.MissingProducts(ctx, listID, supermarketID)
	}, "missing", listID.String(), supermarketID.String())
	return out, err
}

// Invalidate drops every cached comparison.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

func (s *Service) load(ctx context.Context, dest any, loader func(context.Context) (any, error), parts ...string) error {
	key, err := s.cache.BuildKey(ctx, append([]string{"pricing"}, parts...)...)
	fetch := func() (any, error) { return s.cache.FetchJSON(ctx, key, loader) }
	if err != nil {
		s.logger.Warn("pricing cache unavailable", slog.Any("error", err))
		key = strings.Join(append([]string{"nocache"}, parts...), ":")
		fetch = func() (any, error) { return load(ctx, loader) }
	}
	resultChan := s.group.DoChan(key, fetch)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return res.Err
		}
		return json.Unmarshal(res.Val.([]byte), dest)
	}
}

func invalidID(what string) error {
	return fmt.Errorf("pricing: invalid %s id: %w", what, httpx.ErrValidation)
}

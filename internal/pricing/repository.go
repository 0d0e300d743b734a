package pricing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements ObservationStore and Queries on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) InsertObservation(ctx context.Context, obs Observation) error {
	var batchID *uuid.UUID
	if obs.BatchID != uuid.Nil {
		batchID = &obs.BatchID
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO sku_price
		(product_id, supermarket_id, price, price_type, min_quantity, source, batch_id, captured_at, unit_size)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8, $9)`,
		obs.ProductID, obs.SupermarketID, obs.Price.String(), string(obs.PriceType),
		obs.MinQuantity, obs.Source, batchID, obs.CapturedAt, obs.UnitSize,
	)
	if err != nil {
		return fmt.Errorf("pricing: insert observation: %w", err)
	}
	return nil
}

func (r *Repository) CalculateTotals(ctx context.Context, listID uuid.UUID) ([]MarketTotal, error) {
	rows, err := r.pool.Query(ctx, `SELECT supermarket_id, supermarket_name, total_amount::float8,
		found_count::int, missing_count::int
		FROM rpc_calculate_totals($1)`, listID)
	if err != nil {
		return nil, fmt.Errorf("pricing: calculate totals: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (MarketTotal, error) {
		var t MarketTotal
		err := row.Scan(&t.SupermarketID, &t.SupermarketName, &t.TotalAmount, &t.FoundCount, &t.MissingCount)
		return t, err
	})
}

func (r *Repository) CompareTwoMarkets(ctx context.Context, listID, marketA, marketB uuid.UUID) ([]MarketComparison, error) {
	rows, err := r.pool.Query(ctx, `SELECT product_id, product_name, price_a::float8, price_b::float8,
		COALESCE(cheaper, ''), COALESCE(missing_in, ARRAY[]::text[])
		FROM rpc_compare_two_markets($1, $2, $3)`, listID, marketA, marketB)
	if err != nil {
		return nil, fmt.Errorf("pricing: compare markets: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (MarketComparison, error) {
		var c MarketComparison
		err := row.Scan(&c.ProductID, &c.ProductName, &c.PriceA, &c.PriceB, &c.Cheaper, &c.MissingIn)
		return c, err
	})
}

func (r *Repository) FoundProducts(ctx context.Context, listID, supermarketID uuid.UUID) ([]FoundProduct, error) {
	rows, err := r.pool.Query(ctx, `SELECT product_id, product_name, price::float8, quantity::int
		FROM rpc_get_found_products($1, $2)`, listID, supermarketID)
	if err != nil {
		return nil, fmt.Errorf("pricing: found products: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (FoundProduct, error) {
		var f FoundProduct
		err := row.Scan(&f.ProductID, &f.ProductName, &f.Price, &f.Quantity)
		return f, err
	})
}

func (r *Repository) MissingProducts(ctx context.Context, listID, supermarketID uuid.UUID) ([]MissingProduct, error) {
	rows, err := r.pool.Query(ctx, `SELECT product_id, product_name, cheapest_supermarket_name, cheapest_price::float8
		FROM rpc_get_missing_products($1, $2)`, listID, supermarketID)
	if err != nil {
		return nil, fmt.Errorf("pricing: missing products: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (MissingProduct, error) {
		var m MissingProduct
		err := row.Scan(&m.ProductID, &m.ProductName, &m.CheapestSupermarketName, &m.CheapestPrice)
		return m, err
	})
}

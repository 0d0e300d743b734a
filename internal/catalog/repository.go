package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mercadoleve/mercadoleve/internal/platform/db"
)

const (
	defaultListLimit  = 50
	maxListLimit      = 200
	uniqueViolation   = "23505"
	productColumns    = `id, name, brand, ean, category, unit, created_at`
	searchOrderClause = ` ORDER BY created_at ASC, id ASC`
)

// Repository persists catalog products.
type Repository interface {
	List(ctx context.Context, filters ListFilters) ([]Product, error)
	Get(ctx context.Context, id uuid.UUID) (Product, error)
	FindByEAN(ctx context.Context, ean string) (Product, error)
	SearchByName(ctx context.Context, fragment string, limit int) ([]Product, error)
	Create(ctx context.Context, product Product) (Product, error)
	SetUnit(ctx context.Context, id uuid.UUID, unit string) error
	BackfillIdentity(ctx context.Context, id uuid.UUID, ean string, unit *string) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a PostgreSQL backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) List(ctx context.Context, filters ListFilters) ([]Product, error) {
	limit := clampLimit(filters.Limit)
	if strings.TrimSpace(filters.Search) == "" {
		rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM product_master ORDER BY name ASC LIMIT $1`, limit)
		if err != nil {
			return nil, fmt.Errorf("catalog: list: %w", err)
		}
		return collectProducts(rows)
	}
	pattern := likePattern(filters.Search)
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM product_master
		WHERE name ILIKE $1 ESCAPE '\' OR brand ILIKE $1 ESCAPE '\' OR ean = $2
		ORDER BY name ASC LIMIT $3`, pattern, strings.TrimSpace(filters.Search), limit)
	if err != nil {
		return nil, fmt.Errorf("catalog: list: %w", err)
	}
	return collectProducts(rows)
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM product_master WHERE id = $1`, id)
	return scanProduct(row)
}

func (r *repository) FindByEAN(ctx context.Context, ean string) (Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM product_master WHERE ean = $1`+searchOrderClause+` LIMIT 1`, ean)
	return scanProduct(row)
}

func (r *repository) SearchByName(ctx context.Context, fragment string, limit int) ([]Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM product_master
		WHERE name ILIKE $1 ESCAPE '\'`+searchOrderClause+` LIMIT $2`, likePattern(fragment), clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("catalog: search by name: %w", err)
	}
	return collectProducts(rows)
}

func (r *repository) Create(ctx context.Context, product Product) (Product, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO product_master (name, brand, ean, category, unit)
		VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`,
		product.Name, product.Brand, product.EAN, product.Category, product.Unit,
	).Scan(&product.ID, &product.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Product{}, ErrDuplicateEAN
		}
		return Product{}, fmt.Errorf("catalog: create: %w", err)
	}
	return product, nil
}

func (r *repository) SetUnit(ctx context.Context, id uuid.UUID, unit string) error {
	_, err := r.pool.Exec(ctx, `UPDATE product_master SET unit = $2 WHERE id = $1 AND (unit IS NULL OR unit = '')`, id, unit)
	if err != nil {
		return fmt.Errorf("catalog: set unit: %w", err)
	}
	return nil
}

// BackfillIdentity writes the barcode and, when missing, the unit in one
// statement. The row is locked first so two batches cannot both backfill.
func (r *repository) BackfillIdentity(ctx context.Context, id uuid.UUID, ean string, unit *string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var current *string
		err := tx.QueryRow(ctx, `SELECT ean FROM product_master WHERE id = $1 FOR UPDATE`, id).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("catalog: lock product: %w", err)
		}
		if !isBlank(current) {
			return nil
		}
		if _, err := tx.Exec(ctx, `UPDATE product_master SET ean = $2, unit = COALESCE(NULLIF(unit, ''), $3) WHERE id = $1`, id, ean, unit); err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateEAN
			}
			return fmt.Errorf("catalog: backfill: %w", err)
		}
		return nil
	})
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Brand, &p.EAN, &p.Category, &p.Unit, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	if err != nil {
		return Product{}, fmt.Errorf("catalog: scan product: %w", err)
	}
	return p, nil
}

func collectProducts(rows pgx.Rows) ([]Product, error) {
	defer rows.Close()
	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

func likePattern(fragment string) string {
	return "%" + likeEscaper.Replace(strings.TrimSpace(fragment)) + "%"
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// Package pricing records supermarket price observations and serves list
// comparisons computed by the database.
package pricing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrInvalidPriceType indicates a price type outside retail or wholesale.
var ErrInvalidPriceType = errors.New("pricing: invalid price type")

// PriceType distinguishes single-unit from bulk pricing.
type PriceType string

const (
	PriceRetail    PriceType = "retail"
	PriceWholesale PriceType = "wholesale"
)

// SourceOCR marks observations captured from shelf photos.
const SourceOCR = "ocr"

// Valid reports whether the price type is known.
func (t PriceType) Valid() bool {
	return t == PriceRetail || t == PriceWholesale
}

// Observation is one append-only sku_price row.
type Observation struct {
	ProductID     uuid.UUID
	SupermarketID uuid.UUID
	BatchID       uuid.UUID
	Price         decimal.Decimal
	PriceType     PriceType
	MinQuantity   int
	Source        string
	UnitSize      *string
	CapturedAt    time.Time
}

// ObservationStore appends price observations.
type ObservationStore interface {
	InsertObservation(ctx context.Context, obs Observation) error
}

// RecordInput carries the priced fields of one resolved extracted item.
type RecordInput struct {
	ProductID       uuid.UUID
	SupermarketID   uuid.UUID
	BatchID         uuid.UUID
	UnitSize        string
	RetailPrice     *float64
	WholesalePrice  *float64
	MinWholesaleQty *int
}

// MarketTotal is one rpc_calculate_totals row.
type MarketTotal struct {
	SupermarketID   uuid.UUID `json:"supermarket_id"`
	SupermarketName string    `json:"supermarket_name"`
	TotalAmount     float64   `json:"total_amount"`
	FoundCount      int       `json:"found_count"`
	MissingCount    int       `json:"missing_count"`
}

// MarketComparison is one rpc_compare_two_markets row.
type MarketComparison struct {
	ProductID   uuid.UUID `json:"product_id"`
	ProductName string    `json:"product_name"`
	PriceA      *float64  `json:"price_a"`
	PriceB      *float64  `json:"price_b"`
	Cheaper     string    `json:"cheaper"`
	MissingIn   []string  `json:"missing_in"`
}

// FoundProduct is one rpc_get_found_products row.
type FoundProduct struct {
	ProductID   uuid.UUID `json:"product_id"`
	ProductName string    `json:"product_name"`
	Price       float64   `json:"price"`
	Quantity    int       `json:"quantity"`
}

// MissingProduct is one rpc_get_missing_products row.
type MissingProduct struct {
	ProductID               uuid.UUID `json:"product_id"`
	ProductName             string    `json:"product_name"`
	CheapestSupermarketName *string   `json:"cheapest_supermarket_name"`
	CheapestPrice           *float64  `json:"cheapest_price"`
}

// Queries runs the comparison routines stored in the database.
type Queries interface {
	CalculateTotals(ctx context.Context, listID uuid.UUID) ([]MarketTotal, error)
	CompareTwoMarkets(ctx context.Context, listID, marketA, marketB uuid.UUID) ([]MarketComparison, error)
	FoundProducts(ctx context.Context, listID, supermarketID uuid.UUID) ([]FoundProduct, error)
	MissingProducts(ctx context.Context, listID, supermarketID uuid.UUID) ([]MissingProduct, error)
}

package catalog

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mercadoleve/mercadoleve/internal/platform/httpx"
)

var (
	// ErrNotFound indicates the product does not exist.
	ErrNotFound = fmt.Errorf("catalog: product %w", httpx.ErrNotFound)
	// ErrDuplicateEAN indicates another product already owns the barcode.
	ErrDuplicateEAN = fmt.Errorf("catalog: ean %w", httpx.ErrDuplicate)
)

// Product represents a product_master row.
type Product struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Brand     *string   `json:"brand,omitempty"`
	EAN       *string   `json:"ean,omitempty"`
	Category  *string   `json:"category,omitempty"`
	Unit      *string   `json:"unit,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ListFilters narrows product listings.
type ListFilters struct {
	Search string
	Limit  int
}

// Candidate is the part of an extracted item that drives reconciliation.
type Candidate struct {
	Name       string
	Brand      string
	EAN        string
	Unit       string
	Confidence float64
}

// Method records which rule resolved a candidate.
type Method string

const (
	MethodEAN        Method = "ean"
	MethodName       Method = "name"
	MethodCreated    Method = "created"
	MethodUnresolved Method = "unresolved"
)

// Resolution is the outcome of reconciling one candidate.
type Resolution struct {
	ProductID uuid.UUID
	Method    Method
}

// Resolved reports whether a catalog product was matched or created.
func (r Resolution) Resolved() bool {
	return r.ProductID != uuid.Nil && r.Method != MethodUnresolved
}

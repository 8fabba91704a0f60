package order

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Variant is the slice of the catalog the core needs: the price snapshot
// source and the inventory-tracking flag. Catalog browsing itself is a
// collaborator concern.
type Variant struct {
	ID             uuid.UUID
	SKU            string
	Name           string
	Price          decimal.Decimal
	TrackInventory bool
}

// VariantProvider resolves product variants when items are added to an order.
type VariantProvider interface {
	Variant(ctx context.Context, id uuid.UUID) (*Variant, error)
}

// ShippingQuote is one eligible shipping method with its price for a given
// order.
type ShippingQuote struct {
	MethodID uuid.UUID
	Code     string
	Name     string
	Price    decimal.Decimal
}

// ShippingEngine quotes eligible shipping methods and prices a selected
// method for an order. Implemented by the shipping package.
type ShippingEngine interface {
	EligibleMethods(ctx context.Context, ord *Order) ([]ShippingQuote, error)
	PriceFor(ctx context.Context, ord *Order, methodID uuid.UUID) (decimal.Decimal, error)
}

// StockAllocator records stock movements for settled sales and for
// compensating cancellations. Both must happen exactly once per item, inside
// the same unit of work as the state change that triggered them.
type StockAllocator interface {
	CreateSalesForOrder(ctx context.Context, ord *Order) error
	CreateCancellationsForItems(ctx context.Context, ord *Order, items []*Item) error
}

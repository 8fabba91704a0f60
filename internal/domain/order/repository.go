package order

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Fulfillment is a shipment covering one or more items. Carrier integration
// is a collaborator concern; the core only tracks which items a fulfillment
// consumed.
type Fulfillment struct {
	ID           uuid.UUID
	OrderID      uuid.UUID
	Method       string
	TrackingCode string
	CreatedAt    time.Time
}

// Repository persists the order aggregate. Save replaces the aggregate's
// owned rows (lines, items, adjustments) wholesale; partial updates would
// undermine the full-recompute model.
type Repository interface {
	Create(ctx context.Context, ord *Order) error
	Save(ctx context.Context, ord *Order) error
	ByID(ctx context.Context, id uuid.UUID) (*Order, error)
	// ActiveByCustomer returns the customer's active order, or (nil, nil)
	// when there is none.
	ActiveByCustomer(ctx context.Context, customerID uuid.UUID) (*Order, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// FulfillmentRepository persists fulfillments.
type FulfillmentRepository interface {
	CreateFulfillment(ctx context.Context, f *Fulfillment) error
}

// TxRunner executes fn inside one unit of work. Every order mutation plus
// its recompute and side effects runs under a single InTx call; an error
// rolls the whole unit back, so a failed transition or recompute never
// leaves a partially written order behind.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

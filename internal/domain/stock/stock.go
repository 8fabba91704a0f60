// Package stock records stock movements: sale entries when an order settles
// and compensating cancellation entries when items are cancelled. Each item
// is accounted for exactly once; the order state machine's all-or-nothing
// transition contract keeps a settled order and its sale movements in step.
package stock

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ordwell/ordercore/internal/domain/order"
)

// Kind classifies a stock movement.
type Kind string

const (
	KindSale         Kind = "sale"
	KindCancellation Kind = "cancellation"
	KindAdjustment   Kind = "adjustment"
)

// Movement is one ledger entry against a variant's on-hand stock. Quantity
// is signed: sales are negative, cancellations and upward adjustments
// positive.
type Movement struct {
	ID        uuid.UUID
	VariantID uuid.UUID
	OrderID   *uuid.UUID
	Kind      Kind
	Quantity  int
	CreatedAt time.Time
}

// Repository persists movements and the derived on-hand counter.
type Repository interface {
	CreateMovements(ctx context.Context, movements []*Movement) error
	AdjustVariantStock(ctx context.Context, variantID uuid.UUID, delta int) error
}

var _ order.StockAllocator = (*Service)(nil)

// Service implements order.StockAllocator.
type Service struct {
	repo     Repository
	variants order.VariantProvider
	lg       *zap.Logger
}

// NewService creates the stock service.
func NewService(repo Repository, variants order.VariantProvider, lg *zap.Logger) *Service {
	return &Service{repo: repo, variants: variants, lg: lg}
}

// CreateSalesForOrder writes one sale movement per order line and decrements
// the on-hand stock of inventory-tracked variants. Called from the order
// state machine on entry to PaymentSettled.
func (s *Service) CreateSalesForOrder(ctx context.Context, ord *order.Order) error {
	movements := make([]*Movement, 0, len(ord.Lines))
	for _, l := range ord.Lines {
		if l.Quantity == 0 {
			continue
		}
		movements = append(movements, &Movement{
			ID:        uuid.New(),
			VariantID: l.VariantID,
			OrderID:   &ord.ID,
			Kind:      KindSale,
			Quantity:  -l.Quantity,
			CreatedAt: time.Now().UTC(),
		})
	}
	if len(movements) == 0 {
		return nil
	}

	if err := s.repo.CreateMovements(ctx, movements); err != nil {
		return errors.Wrap(err, "create sale movements")
	}

	for _, l := range ord.Lines {
		if l.Quantity == 0 {
			continue
		}
		variant, err := s.variants.Variant(ctx, l.VariantID)
		if err != nil {
			return errors.Wrapf(err, "resolve variant %s", l.VariantID)
		}
		if !variant.TrackInventory {
			continue
		}
		if err := s.repo.AdjustVariantStock(ctx, l.VariantID, -l.Quantity); err != nil {
			return errors.Wrapf(err, "decrement stock for variant %s", l.VariantID)
		}
	}

	s.lg.Debug("sale movements created",
		zap.String("order", ord.Code),
		zap.Int("movements", len(movements)),
	)
	return nil
}

// CreateCancellationsForItems writes compensating movements for the given
// cancelled items, restoring on-hand stock for tracked variants.
func (s *Service) CreateCancellationsForItems(ctx context.Context, ord *order.Order, items []*order.Item) error {
	counts := make(map[uuid.UUID]int)
	for _, it := range items {
		_, line := ord.Item(it.ID)
		if line == nil {
			return errors.Errorf("item %s does not belong to order %s", it.ID, ord.Code)
		}
		counts[line.VariantID]++
	}

	movements := make([]*Movement, 0, len(counts))
	for variantID, n := range counts {
		movements = append(movements, &Movement{
			ID:        uuid.New(),
			VariantID: variantID,
			OrderID:   &ord.ID,
			Kind:      KindCancellation,
			Quantity:  n,
			CreatedAt: time.Now().UTC(),
		})
	}
	if len(movements) == 0 {
		return nil
	}

	if err := s.repo.CreateMovements(ctx, movements); err != nil {
		return errors.Wrap(err, "create cancellation movements")
	}

	for variantID, n := range counts {
		variant, err := s.variants.Variant(ctx, variantID)
		if err != nil {
			return errors.Wrapf(err, "resolve variant %s", variantID)
		}
		if !variant.TrackInventory {
			continue
		}
		if err := s.repo.AdjustVariantStock(ctx, variantID, n); err != nil {
			return errors.Wrapf(err, "restore stock for variant %s", variantID)
		}
	}
	return nil
}

// AdjustStock records a manual stock adjustment for a variant.
func (s *Service) AdjustStock(ctx context.Context, variantID uuid.UUID, delta int) error {
	if delta == 0 {
		return nil
	}
	movement := &Movement{
		ID:        uuid.New(),
		VariantID: variantID,
		Kind:      KindAdjustment,
		Quantity:  delta,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateMovements(ctx, []*Movement{movement}); err != nil {
		return errors.Wrap(err, "create adjustment movement")
	}
	if err := s.repo.AdjustVariantStock(ctx, variantID, delta); err != nil {
		return errors.Wrap(err, "adjust stock")
	}
	return nil
}

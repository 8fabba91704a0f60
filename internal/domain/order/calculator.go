package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ordwell/ordercore/internal/domain/promotion"
)

// ActivePromotionSource supplies the currently enabled, non-deleted
// promotions. Implementations may cache; the authoritative coupon checks
// happen at apply time against the repository.
type ActivePromotionSource interface {
	ActivePromotions(ctx context.Context) ([]*promotion.Promotion, error)
}

// Calculator recomputes every derived monetary field of an order: line
// totals, promotion adjustments, shipping cost, and the grand total. Each
// pass is a full recompute from the unit-price snapshots; nothing is patched
// incrementally, which makes recomputation idempotent by construction.
type Calculator struct {
	evaluator *promotion.Evaluator
	promos    ActivePromotionSource
	shipping  ShippingEngine
	lg        *zap.Logger
}

// NewCalculator wires the calculator with its collaborators.
func NewCalculator(evaluator *promotion.Evaluator, promos ActivePromotionSource, shipping ShippingEngine, lg *zap.Logger) *Calculator {
	return &Calculator{
		evaluator: evaluator,
		promos:    promos,
		shipping:  shipping,
		lg:        lg,
	}
}

// ApplyPriceAdjustments rebuilds the order's adjustments and totals. It
// returns the items whose effective unit price changed, so the caller can
// limit what it persists. The order is mutated in place; on error the caller
// must discard the aggregate rather than persist it.
func (c *Calculator) ApplyPriceAdjustments(ctx context.Context, ord *Order) ([]*Item, error) {
	before := make(map[uuid.UUID]decimal.Decimal, len(ord.Lines)*2)
	for _, it := range ord.Items() {
		before[it.ID] = it.AdjustedUnitPrice
	}

	// Full recompute: discard everything derived, then regenerate.
	ord.ClearAdjustments()

	promos, err := c.promos.ActivePromotions(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load active promotions")
	}

	res, err := c.evaluator.Evaluate(ctx, snapshotCart(ord), promos)
	if err != nil {
		return nil, errors.Wrap(err, "evaluate promotions")
	}

	for _, d := range res.LineDiscounts {
		line := ord.Line(d.LineID)
		if line == nil {
			continue
		}
		line.Adjustments = append(line.Adjustments, Adjustment{
			Type:        AdjustmentPromotion,
			Amount:      d.Amount,
			Description: d.Description,
			SourceID:    d.PromotionID,
		})
	}
	for _, d := range res.OrderDiscounts {
		ord.Adjustments = append(ord.Adjustments, Adjustment{
			Type:        AdjustmentPromotion,
			Amount:      d.Amount,
			Description: d.Description,
			SourceID:    d.PromotionID,
		})
	}

	if ord.ShippingMethodID != nil {
		price, err := c.shipping.PriceFor(ctx, ord, *ord.ShippingMethodID)
		if err != nil {
			return nil, errors.Wrap(err, "price shipping")
		}
		ord.ShippingCost = price
	} else {
		ord.ShippingCost = decimal.Zero
	}

	ord.recomputeTotals()
	changed := c.reapplyItemPrices(ord, before)
	ord.UpdatedAt = time.Now().UTC()

	c.lg.Debug("price adjustments applied",
		zap.String("order", ord.Code),
		zap.String("subTotal", ord.SubTotal.String()),
		zap.String("total", ord.Total.String()),
		zap.Int("changedItems", len(changed)),
	)
	return changed, nil
}

// reapplyItemPrices prorates each line's adjustment total evenly across its
// items and collects the items whose effective price differs from the
// snapshot taken before the recompute.
func (c *Calculator) reapplyItemPrices(ord *Order, before map[uuid.UUID]decimal.Decimal) []*Item {
	var changed []*Item
	for _, l := range ord.Lines {
		perUnit := decimal.Zero
		if l.Quantity > 0 {
			perUnit = l.AdjustmentTotal().Div(decimal.NewFromInt(int64(l.Quantity))).Round(2)
		}
		for _, it := range l.Items {
			price := it.UnitPrice.Add(perUnit)
			it.AdjustedUnitPrice = price
			if !before[it.ID].Equal(price) {
				changed = append(changed, it)
			}
		}
	}
	return changed
}

// snapshotCart projects the aggregate into the promotion evaluator's view.
func snapshotCart(ord *Order) promotion.Cart {
	lines := make([]promotion.CartLine, len(ord.Lines))
	for i, l := range ord.Lines {
		lines[i] = promotion.CartLine{
			ID:        l.ID,
			VariantID: l.VariantID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		}
	}
	return promotion.Cart{
		OrderID:     ord.ID,
		CustomerID:  ord.CustomerID,
		CouponCodes: ord.CouponCodes,
		Lines:       lines,
	}
}

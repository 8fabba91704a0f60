package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ordwell/ordercore/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders (id, code, state, active, customer_id, coupon_codes,
			shipping_method_id, shipping_address, billing_address, adjustments,
			sub_total, shipping_cost, total, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	updateOrderSQL = `UPDATE orders SET state = $2, active = $3, customer_id = $4,
			coupon_codes = $5, shipping_method_id = $6, shipping_address = $7,
			billing_address = $8, adjustments = $9, sub_total = $10,
			shipping_cost = $11, total = $12, updated_at = $13
		WHERE id = $1`

	selectOrderSQL = `SELECT id, code, state, active, customer_id, coupon_codes,
			shipping_method_id, shipping_address, billing_address, adjustments,
			sub_total, shipping_cost, total, created_at, updated_at
		FROM orders`

	getOrderByIDSQL        = selectOrderSQL + ` WHERE id = $1`
	getActiveByCustomerSQL = selectOrderSQL + ` WHERE customer_id = $1 AND active ORDER BY created_at LIMIT 1`
	deleteOrderSQL         = `DELETE FROM orders WHERE id = $1`
	deleteOrderLinesSQL    = `DELETE FROM order_lines WHERE order_id = $1`

	insertOrderLineSQL = `INSERT INTO order_lines (id, order_id, variant_id, quantity, unit_price, adjustments, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	insertOrderItemSQL = `INSERT INTO order_items (id, line_id, unit_price, adjusted_price, cancelled, fulfillment_id, refund_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	getLinesByOrderSQL = `SELECT id, variant_id, quantity, unit_price, adjustments
		FROM order_lines WHERE order_id = $1 ORDER BY position`

	getItemsByLineSQL = `SELECT id, unit_price, adjusted_price, cancelled, fulfillment_id, refund_id
		FROM order_items WHERE line_id = $1 ORDER BY id`

	insertFulfillmentSQL = `INSERT INTO fulfillments (id, order_id, method, tracking_code, created_at)
		VALUES ($1, $2, $3, $4, $5)`
)

var (
	_ order.Repository            = (*OrderRepository)(nil)
	_ order.FulfillmentRepository = (*OrderRepository)(nil)
)

// OrderRepository implements order.Repository backed by PostgreSQL. Save
// replaces the aggregate's lines and items wholesale; the core's
// full-recompute model makes partial updates pointless.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order and its lines.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	q := conn(ctx, r.pool)
	if err := r.insertHeader(ctx, q, o); err != nil {
		return err
	}
	return r.insertLines(ctx, q, o)
}

// Save replaces the persisted aggregate with the in-memory one.
func (r *OrderRepository) Save(ctx context.Context, o *order.Order) error {
	q := conn(ctx, r.pool)

	shippingAddr, billingAddr, adjustments, err := marshalOrderJSON(o)
	if err != nil {
		return err
	}
	tag, err := q.Exec(ctx, updateOrderSQL,
		o.ID, o.State, o.Active, o.CustomerID, o.CouponCodes,
		o.ShippingMethodID, shippingAddr, billingAddr, adjustments,
		o.SubTotal, o.ShippingCost, o.Total, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating order %s: %w", o.Code, err)
	}
	if tag.RowsAffected() == 0 {
		return &order.NotFoundError{Entity: "order", ID: o.ID.String()}
	}

	if _, err := q.Exec(ctx, deleteOrderLinesSQL, o.ID); err != nil {
		return fmt.Errorf("clearing lines of order %s: %w", o.Code, err)
	}
	return r.insertLines(ctx, q, o)
}

// ByID loads the full aggregate, or (nil, nil) when the order is unknown.
func (r *OrderRepository) ByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	q := conn(ctx, r.pool)

	rows, err := q.Query(ctx, getOrderByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %s: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting order %s: %w", id, err)
	}

	if err := r.loadLines(ctx, q, o); err != nil {
		return nil, err
	}
	return o, nil
}

// ActiveByCustomer returns the customer's active order, or (nil, nil).
func (r *OrderRepository) ActiveByCustomer(ctx context.Context, customerID uuid.UUID) (*order.Order, error) {
	q := conn(ctx, r.pool)

	rows, err := q.Query(ctx, getActiveByCustomerSQL, customerID)
	if err != nil {
		return nil, fmt.Errorf("getting active order for customer %s: %w", customerID, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting active order for customer %s: %w", customerID, err)
	}

	if err := r.loadLines(ctx, q, o); err != nil {
		return nil, err
	}
	return o, nil
}

// Delete removes the order; lines and items cascade.
func (r *OrderRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := conn(ctx, r.pool).Exec(ctx, deleteOrderSQL, id); err != nil {
		return fmt.Errorf("deleting order %s: %w", id, err)
	}
	return nil
}

// CreateFulfillment persists a fulfillment record.
func (r *OrderRepository) CreateFulfillment(ctx context.Context, f *order.Fulfillment) error {
	_, err := conn(ctx, r.pool).Exec(ctx, insertFulfillmentSQL,
		f.ID, f.OrderID, f.Method, f.TrackingCode, f.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating fulfillment %s: %w", f.ID, err)
	}
	return nil
}

func (r *OrderRepository) insertHeader(ctx context.Context, q querier, o *order.Order) error {
	shippingAddr, billingAddr, adjustments, err := marshalOrderJSON(o)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, insertOrderSQL,
		o.ID, o.Code, o.State, o.Active, o.CustomerID, o.CouponCodes,
		o.ShippingMethodID, shippingAddr, billingAddr, adjustments,
		o.SubTotal, o.ShippingCost, o.Total, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %s: %w", o.Code, err)
	}
	return nil
}

func (r *OrderRepository) insertLines(ctx context.Context, q querier, o *order.Order) error {
	for pos, l := range o.Lines {
		adjustments, err := json.Marshal(l.Adjustments)
		if err != nil {
			return fmt.Errorf("marshaling adjustments of line %s: %w", l.ID, err)
		}
		if _, err := q.Exec(ctx, insertOrderLineSQL,
			l.ID, o.ID, l.VariantID, l.Quantity, l.UnitPrice, adjustments, pos,
		); err != nil {
			return fmt.Errorf("creating line %s: %w", l.ID, err)
		}
		for _, it := range l.Items {
			if _, err := q.Exec(ctx, insertOrderItemSQL,
				it.ID, l.ID, it.UnitPrice, it.AdjustedUnitPrice, it.Cancelled, it.FulfillmentID, it.RefundID,
			); err != nil {
				return fmt.Errorf("creating item %s: %w", it.ID, err)
			}
		}
	}
	return nil
}

func (r *OrderRepository) loadLines(ctx context.Context, q querier, o *order.Order) error {
	rows, err := q.Query(ctx, getLinesByOrderSQL, o.ID)
	if err != nil {
		return fmt.Errorf("loading lines of order %s: %w", o.Code, err)
	}
	lines, err := pgx.CollectRows(rows, scanLine)
	if err != nil {
		return fmt.Errorf("loading lines of order %s: %w", o.Code, err)
	}

	for _, l := range lines {
		itemRows, err := q.Query(ctx, getItemsByLineSQL, l.ID)
		if err != nil {
			return fmt.Errorf("loading items of line %s: %w", l.ID, err)
		}
		items, err := pgx.CollectRows(itemRows, scanItem)
		if err != nil {
			return fmt.Errorf("loading items of line %s: %w", l.ID, err)
		}
		l.Items = items
	}
	o.Lines = lines
	return nil
}

func marshalOrderJSON(o *order.Order) (shippingAddr, billingAddr, adjustments []byte, err error) {
	if o.ShippingAddress != nil {
		if shippingAddr, err = json.Marshal(o.ShippingAddress); err != nil {
			return nil, nil, nil, fmt.Errorf("marshaling shipping address: %w", err)
		}
	}
	if o.BillingAddress != nil {
		if billingAddr, err = json.Marshal(o.BillingAddress); err != nil {
			return nil, nil, nil, fmt.Errorf("marshaling billing address: %w", err)
		}
	}
	if adjustments, err = json.Marshal(o.Adjustments); err != nil {
		return nil, nil, nil, fmt.Errorf("marshaling adjustments: %w", err)
	}
	return shippingAddr, billingAddr, adjustments, nil
}

func scanOrder(row pgx.CollectableRow) (*order.Order, error) {
	var (
		o                         order.Order
		shippingAddr, billingAddr []byte
		adjustments               []byte
	)
	err := row.Scan(
		&o.ID, &o.Code, &o.State, &o.Active, &o.CustomerID, &o.CouponCodes,
		&o.ShippingMethodID, &shippingAddr, &billingAddr, &adjustments,
		&o.SubTotal, &o.ShippingCost, &o.Total, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(shippingAddr) > 0 {
		o.ShippingAddress = &order.Address{}
		if err := json.Unmarshal(shippingAddr, o.ShippingAddress); err != nil {
			return nil, fmt.Errorf("unmarshaling shipping address: %w", err)
		}
	}
	if len(billingAddr) > 0 {
		o.BillingAddress = &order.Address{}
		if err := json.Unmarshal(billingAddr, o.BillingAddress); err != nil {
			return nil, fmt.Errorf("unmarshaling billing address: %w", err)
		}
	}
	if len(adjustments) > 0 {
		if err := json.Unmarshal(adjustments, &o.Adjustments); err != nil {
			return nil, fmt.Errorf("unmarshaling adjustments: %w", err)
		}
	}
	return &o, nil
}

func scanLine(row pgx.CollectableRow) (*order.Line, error) {
	var (
		l           order.Line
		adjustments []byte
	)
	err := row.Scan(&l.ID, &l.VariantID, &l.Quantity, &l.UnitPrice, &adjustments)
	if err != nil {
		return nil, err
	}
	if len(adjustments) > 0 {
		if err := json.Unmarshal(adjustments, &l.Adjustments); err != nil {
			return nil, fmt.Errorf("unmarshaling adjustments of line %s: %w", l.ID, err)
		}
	}
	return &l, nil
}

func scanItem(row pgx.CollectableRow) (*order.Item, error) {
	var it order.Item
	err := row.Scan(&it.ID, &it.UnitPrice, &it.AdjustedUnitPrice, &it.Cancelled, &it.FulfillmentID, &it.RefundID)
	return &it, err
}

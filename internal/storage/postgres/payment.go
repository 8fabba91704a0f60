package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ordwell/ordercore/internal/domain/payment"
)

const (
	insertPaymentSQL = `INSERT INTO payments (id, order_id, state, amount, method, transaction_id, error_message, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`

	updatePaymentSQL = `UPDATE payments SET state = $2, transaction_id = $3, error_message = $4, updated_at = $5
		WHERE id = $1`

	selectPaymentSQL = `SELECT id, order_id, state, amount, method, transaction_id, error_message, metadata, created_at, updated_at
		FROM payments`

	getPaymentByIDSQL     = selectPaymentSQL + ` WHERE id = $1`
	getPaymentsByOrderSQL = selectPaymentSQL + ` WHERE order_id = $1 ORDER BY created_at`

	insertRefundSQL = `INSERT INTO refunds (id, payment_id, state, items_amount, shipping_amount, adjustment, total,
			transaction_id, reason, item_ids, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)`

	updateRefundSQL = `UPDATE refunds SET state = $2, transaction_id = $3, updated_at = $4 WHERE id = $1`

	getRefundByIDSQL = `SELECT id, payment_id, state, items_amount, shipping_amount, adjustment, total,
			transaction_id, reason, item_ids, created_at, updated_at
		FROM refunds WHERE id = $1`
)

var _ payment.Repository = (*PaymentRepository)(nil)

// PaymentRepository implements payment.Repository backed by PostgreSQL.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentRepository returns a PaymentRepository that uses the given pool.
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

// CreatePayment persists a new payment.
func (r *PaymentRepository) CreatePayment(ctx context.Context, p *payment.Payment) error {
	metadata, err := json.Marshal(p.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling payment metadata: %w", err)
	}
	_, err = conn(ctx, r.pool).Exec(ctx, insertPaymentSQL,
		p.ID, p.OrderID, p.State, p.Amount, p.Method, p.TransactionID, p.ErrorMessage, metadata, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating payment %s: %w", p.ID, err)
	}
	return nil
}

// UpdatePayment persists the payment's mutable fields.
func (r *PaymentRepository) UpdatePayment(ctx context.Context, p *payment.Payment) error {
	_, err := conn(ctx, r.pool).Exec(ctx, updatePaymentSQL,
		p.ID, p.State, p.TransactionID, p.ErrorMessage, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating payment %s: %w", p.ID, err)
	}
	return nil
}

// Payment loads a payment by id.
func (r *PaymentRepository) Payment(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getPaymentByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting payment %s: %w", id, err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanPayment)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("payment %s not found: %w", id, err)
		}
		return nil, fmt.Errorf("getting payment %s: %w", id, err)
	}
	return p, nil
}

// PaymentsForOrder loads the payments of an order in creation order.
func (r *PaymentRepository) PaymentsForOrder(ctx context.Context, orderID uuid.UUID) ([]*payment.Payment, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getPaymentsByOrderSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing payments of order %s: %w", orderID, err)
	}
	return pgx.CollectRows(rows, scanPayment)
}

// CreateRefund persists a new refund.
func (r *PaymentRepository) CreateRefund(ctx context.Context, ref *payment.Refund) error {
	_, err := conn(ctx, r.pool).Exec(ctx, insertRefundSQL,
		ref.ID, ref.PaymentID, ref.State, ref.ItemsAmount, ref.ShippingAmount, ref.Adjustment,
		ref.Total, ref.TransactionID, ref.Reason, ref.ItemIDs, ref.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating refund %s: %w", ref.ID, err)
	}
	return nil
}

// UpdateRefund persists the refund's mutable fields.
func (r *PaymentRepository) UpdateRefund(ctx context.Context, ref *payment.Refund) error {
	_, err := conn(ctx, r.pool).Exec(ctx, updateRefundSQL,
		ref.ID, ref.State, ref.TransactionID, ref.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating refund %s: %w", ref.ID, err)
	}
	return nil
}

// Refund loads a refund by id.
func (r *PaymentRepository) Refund(ctx context.Context, id uuid.UUID) (*payment.Refund, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getRefundByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting refund %s: %w", id, err)
	}
	ref, err := pgx.CollectExactlyOneRow(rows, scanRefund)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("refund %s not found: %w", id, err)
		}
		return nil, fmt.Errorf("getting refund %s: %w", id, err)
	}
	return ref, nil
}

func scanPayment(row pgx.CollectableRow) (*payment.Payment, error) {
	var (
		p        payment.Payment
		metadata []byte
	)
	err := row.Scan(
		&p.ID, &p.OrderID, &p.State, &p.Amount, &p.Method,
		&p.TransactionID, &p.ErrorMessage, &metadata, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &p.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling metadata of payment %s: %w", p.ID, err)
		}
	}
	return &p, nil
}

func scanRefund(row pgx.CollectableRow) (*payment.Refund, error) {
	var ref payment.Refund
	err := row.Scan(
		&ref.ID, &ref.PaymentID, &ref.State, &ref.ItemsAmount, &ref.ShippingAmount,
		&ref.Adjustment, &ref.Total, &ref.TransactionID, &ref.Reason, &ref.ItemIDs,
		&ref.CreatedAt, &ref.UpdatedAt,
	)
	return &ref, err
}

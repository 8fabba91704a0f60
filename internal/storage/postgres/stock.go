package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ordwell/ordercore/internal/domain/stock"
)

const (
	insertMovementSQL = `INSERT INTO stock_movements (id, variant_id, order_id, kind, quantity, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	adjustStockSQL = `UPDATE product_variants SET stock_on_hand = stock_on_hand + $2 WHERE id = $1`
)

var _ stock.Repository = (*StockRepository)(nil)

// StockRepository implements stock.Repository backed by PostgreSQL.
type StockRepository struct {
	pool *pgxpool.Pool
}

// NewStockRepository returns a StockRepository that uses the given pool.
func NewStockRepository(pool *pgxpool.Pool) *StockRepository {
	return &StockRepository{pool: pool}
}

// CreateMovements persists the given movements using a batch.
func (r *StockRepository) CreateMovements(ctx context.Context, movements []*stock.Movement) error {
	batch := &pgx.Batch{}
	for _, m := range movements {
		batch.Queue(insertMovementSQL, m.ID, m.VariantID, m.OrderID, m.Kind, m.Quantity, m.CreatedAt)
	}

	br := conn(ctx, r.pool).SendBatch(ctx, batch)
	defer func() { _ = br.Close() }()

	for range movements {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("creating stock movements: %w", err)
		}
	}
	return br.Close()
}

// AdjustVariantStock shifts a variant's on-hand counter by delta.
func (r *StockRepository) AdjustVariantStock(ctx context.Context, variantID uuid.UUID, delta int) error {
	_, err := conn(ctx, r.pool).Exec(ctx, adjustStockSQL, variantID, delta)
	if err != nil {
		return fmt.Errorf("adjusting stock of variant %s: %w", variantID, err)
	}
	return nil
}

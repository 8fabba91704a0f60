package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ordwell/ordercore/internal/domain/order"
)

const (
	getVariantByIDSQL = `SELECT id, sku, name, price, track_inventory
		FROM product_variants WHERE id = $1`

	insertVariantSQL = `INSERT INTO product_variants (id, sku, name, price, track_inventory, stock_on_hand)
		VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (sku) DO NOTHING`
)

var _ order.VariantProvider = (*VariantRepository)(nil)

// VariantRepository implements order.VariantProvider backed by PostgreSQL.
type VariantRepository struct {
	pool *pgxpool.Pool
}

// NewVariantRepository returns a VariantRepository that uses the given pool.
func NewVariantRepository(pool *pgxpool.Pool) *VariantRepository {
	return &VariantRepository{pool: pool}
}

// Variant loads a product variant by id.
func (r *VariantRepository) Variant(ctx context.Context, id uuid.UUID) (*order.Variant, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getVariantByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting variant %s: %w", id, err)
	}
	v, err := pgx.CollectExactlyOneRow(rows, scanVariant)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &order.NotFoundError{Entity: "variant", ID: id.String()}
		}
		return nil, fmt.Errorf("getting variant %s: %w", id, err)
	}
	return v, nil
}

// Create persists a variant with an initial stock level. Existing SKUs are
// left untouched, so seeding is re-runnable.
func (r *VariantRepository) Create(ctx context.Context, v *order.Variant, stockOnHand int) error {
	_, err := conn(ctx, r.pool).Exec(ctx, insertVariantSQL,
		v.ID, v.SKU, v.Name, v.Price, v.TrackInventory, stockOnHand,
	)
	if err != nil {
		return fmt.Errorf("creating variant %q: %w", v.SKU, err)
	}
	return nil
}

func scanVariant(row pgx.CollectableRow) (*order.Variant, error) {
	var v order.Variant
	err := row.Scan(&v.ID, &v.SKU, &v.Name, &v.Price, &v.TrackInventory)
	return &v, err
}

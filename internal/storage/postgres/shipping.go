package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ordwell/ordercore/internal/domain/shipping"
)

const (
	selectShippingMethodSQL = `SELECT id, code, name, enabled, checker, calculator FROM shipping_methods`

	getActiveMethodsSQL = selectShippingMethodSQL + ` WHERE enabled ORDER BY code`
	getMethodByIDSQL    = selectShippingMethodSQL + ` WHERE id = $1`

	insertShippingMethodSQL = `INSERT INTO shipping_methods (id, code, name, enabled, checker, calculator)
		VALUES ($1, $2, $3, $4, $5, $6)`
)

var _ shipping.Repository = (*ShippingMethodRepository)(nil)

// ShippingMethodRepository implements shipping.Repository backed by
// PostgreSQL.
type ShippingMethodRepository struct {
	pool *pgxpool.Pool
}

// NewShippingMethodRepository returns a ShippingMethodRepository that uses
// the given pool.
func NewShippingMethodRepository(pool *pgxpool.Pool) *ShippingMethodRepository {
	return &ShippingMethodRepository{pool: pool}
}

// ActiveMethods returns the enabled shipping methods.
func (r *ShippingMethodRepository) ActiveMethods(ctx context.Context) ([]*shipping.Method, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getActiveMethodsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing shipping methods: %w", err)
	}
	return pgx.CollectRows(rows, scanShippingMethod)
}

// Method loads a shipping method by id. Returns shipping.ErrNotFound when
// the id is unknown.
func (r *ShippingMethodRepository) Method(ctx context.Context, id uuid.UUID) (*shipping.Method, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getMethodByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting shipping method %s: %w", id, err)
	}
	m, err := pgx.CollectExactlyOneRow(rows, scanShippingMethod)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shipping.ErrNotFound
		}
		return nil, fmt.Errorf("getting shipping method %s: %w", id, err)
	}
	return m, nil
}

// Create persists a shipping method.
func (r *ShippingMethodRepository) Create(ctx context.Context, m *shipping.Method) error {
	checker, err := json.Marshal(m.Checker)
	if err != nil {
		return fmt.Errorf("marshaling checker config: %w", err)
	}
	calculator, err := json.Marshal(m.Calculator)
	if err != nil {
		return fmt.Errorf("marshaling calculator config: %w", err)
	}

	_, err = conn(ctx, r.pool).Exec(ctx, insertShippingMethodSQL,
		m.ID, m.Code, m.Name, m.Enabled, checker, calculator,
	)
	if err != nil {
		return fmt.Errorf("creating shipping method %q: %w", m.Code, err)
	}
	return nil
}

func scanShippingMethod(row pgx.CollectableRow) (*shipping.Method, error) {
	var (
		m          shipping.Method
		checker    []byte
		calculator []byte
	)
	err := row.Scan(&m.ID, &m.Code, &m.Name, &m.Enabled, &checker, &calculator)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(checker, &m.Checker); err != nil {
		return nil, fmt.Errorf("unmarshaling checker of method %q: %w", m.Code, err)
	}
	if err := json.Unmarshal(calculator, &m.Calculator); err != nil {
		return nil, fmt.Errorf("unmarshaling calculator of method %q: %w", m.Code, err)
	}
	return &m, nil
}

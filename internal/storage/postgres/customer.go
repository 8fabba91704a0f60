package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	insertCustomerSQL = `INSERT INTO customers (id, email, created_at)
		VALUES ($1, $2, $3) ON CONFLICT (email) DO NOTHING`

	getCustomerByEmailSQL = `SELECT id, email, created_at FROM customers WHERE email = $1`
)

// ErrCustomerNotFound is returned when no customer matches the lookup.
var ErrCustomerNotFound = errors.New("customer not found")

// Customer is an account that orders can be assigned to on login.
type Customer struct {
	ID        uuid.UUID
	Email     string
	CreatedAt time.Time
}

// CustomerRepository persists customer accounts.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a CustomerRepository that uses the given
// pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// Create inserts the customer. An existing row with the same email is left
// untouched.
func (r *CustomerRepository) Create(ctx context.Context, c *Customer) error {
	_, err := conn(ctx, r.pool).Exec(ctx, insertCustomerSQL, c.ID, c.Email, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating customer %s: %w", c.Email, err)
	}
	return nil
}

// ByEmail looks up a customer by email. Returns ErrCustomerNotFound when no
// row matches.
func (r *CustomerRepository) ByEmail(ctx context.Context, email string) (*Customer, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getCustomerByEmailSQL, email)
	if err != nil {
		return nil, fmt.Errorf("getting customer by email: %w", err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (*Customer, error) {
		var c Customer
		err := row.Scan(&c.ID, &c.Email, &c.CreatedAt)
		return &c, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("getting customer by email: %w", err)
	}
	return c, nil
}

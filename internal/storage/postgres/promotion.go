package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ordwell/ordercore/internal/domain/promotion"
)

const (
	selectPromotionSQL = `SELECT id, name, enabled, COALESCE(coupon_code, ''), starts_at, ends_at,
			per_customer_limit, conditions, actions, priority_score, created_at
		FROM promotions`

	getActivePromotionsSQL = selectPromotionSQL + ` WHERE enabled AND NOT deleted ORDER BY priority_score, id`
	getPromotionByCodeSQL  = selectPromotionSQL + ` WHERE coupon_code = $1 AND NOT deleted`
	getAllCouponCodesSQL   = `SELECT coupon_code FROM promotions WHERE coupon_code IS NOT NULL AND NOT deleted`

	insertPromotionSQL = `INSERT INTO promotions (id, name, enabled, coupon_code, starts_at, ends_at,
			per_customer_limit, conditions, actions, priority_score, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT DO NOTHING`

	countUsagesSQL = `SELECT COUNT(*) FROM promotion_usages WHERE promotion_id = $1 AND customer_id = $2`
	insertUsageSQL = `INSERT INTO promotion_usages (promotion_id, customer_id, order_id)
		VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`
)

// Sized for bulk-ingested coupon campaigns; rebuilt from the table on the
// first lookup after an invalidation.
const (
	couponFilterCapacity = 10_000_000
	couponFilterFPR      = 0.001
)

var _ promotion.Repository = (*PromotionRepository)(nil)

// PromotionRepository implements promotion.Repository backed by PostgreSQL.
// Coupon lookups go through a bloom filter first, so the flood of mistyped
// and expired codes hitting checkout resolves without a query.
type PromotionRepository struct {
	pool *pgxpool.Pool

	mu     sync.RWMutex
	filter *bloom.BloomFilter
}

// NewPromotionRepository returns a PromotionRepository that uses the given
// pool.
func NewPromotionRepository(pool *pgxpool.Pool) *PromotionRepository {
	return &PromotionRepository{pool: pool}
}

// Active returns the enabled promotions in evaluation order.
func (r *PromotionRepository) Active(ctx context.Context) ([]*promotion.Promotion, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getActivePromotionsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing active promotions: %w", err)
	}
	return pgx.CollectRows(rows, scanPromotion)
}

// FindByCouponCode looks up a promotion by its coupon code. Returns
// promotion.ErrNotFound when no promotion carries the code.
func (r *PromotionRepository) FindByCouponCode(ctx context.Context, code string) (*promotion.Promotion, error) {
	known, err := r.codeMayExist(ctx, code)
	if err != nil {
		return nil, err
	}
	if !known {
		return nil, promotion.ErrNotFound
	}

	rows, err := conn(ctx, r.pool).Query(ctx, getPromotionByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding promotion by code %q: %w", code, err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanPromotion)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promotion.ErrNotFound
		}
		return nil, fmt.Errorf("finding promotion by code %q: %w", code, err)
	}
	return p, nil
}

// Create validates and persists a promotion, adding its coupon code to the
// filter.
func (r *PromotionRepository) Create(ctx context.Context, p *promotion.Promotion) error {
	if err := p.Validate(); err != nil {
		return err
	}

	conditions, err := json.Marshal(p.Conditions)
	if err != nil {
		return fmt.Errorf("marshaling conditions: %w", err)
	}
	actions, err := json.Marshal(p.Actions)
	if err != nil {
		return fmt.Errorf("marshaling actions: %w", err)
	}

	_, err = conn(ctx, r.pool).Exec(ctx, insertPromotionSQL,
		p.ID, p.Name, p.Enabled, p.CouponCode, p.StartsAt, p.EndsAt,
		p.PerCustomerLimit, conditions, actions, p.PriorityScore, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating promotion %q: %w", p.Name, err)
	}

	if p.CouponCode != "" {
		r.mu.Lock()
		if r.filter != nil {
			r.filter.AddString(p.CouponCode)
		}
		r.mu.Unlock()
	}
	return nil
}

// UsageCount returns how many settled orders of the customer used the
// promotion.
func (r *PromotionRepository) UsageCount(ctx context.Context, promotionID, customerID uuid.UUID) (int, error) {
	var n int
	err := conn(ctx, r.pool).QueryRow(ctx, countUsagesSQL, promotionID, customerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting usages of promotion %s: %w", promotionID, err)
	}
	return n, nil
}

// RecordUsage registers one use of the promotion by the customer. Recording
// the same order twice is a no-op.
func (r *PromotionRepository) RecordUsage(ctx context.Context, promotionID, customerID, orderID uuid.UUID) error {
	_, err := conn(ctx, r.pool).Exec(ctx, insertUsageSQL, promotionID, customerID, orderID)
	if err != nil {
		return fmt.Errorf("recording usage of promotion %s: %w", promotionID, err)
	}
	return nil
}

// InvalidateFilter drops the coupon-code filter so it is rebuilt on the next
// lookup. Call after deleting promotions or bulk-editing coupon codes.
func (r *PromotionRepository) InvalidateFilter() {
	r.mu.Lock()
	r.filter = nil
	r.mu.Unlock()
}

// codeMayExist tests the code against the bloom filter, building the filter
// from the table on first use. False means the code definitely has no
// promotion; true means it probably does.
func (r *PromotionRepository) codeMayExist(ctx context.Context, code string) (bool, error) {
	r.mu.RLock()
	f := r.filter
	r.mu.RUnlock()

	if f == nil {
		var err error
		if f, err = r.buildFilter(ctx); err != nil {
			return false, err
		}
	}
	return f.TestString(code), nil
}

func (r *PromotionRepository) buildFilter(ctx context.Context) (*bloom.BloomFilter, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getAllCouponCodesSQL)
	if err != nil {
		return nil, fmt.Errorf("loading coupon codes: %w", err)
	}
	codes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (string, error) {
		var code string
		err := row.Scan(&code)
		return code, err
	})
	if err != nil {
		return nil, fmt.Errorf("loading coupon codes: %w", err)
	}

	f := bloom.NewWithEstimates(couponFilterCapacity, couponFilterFPR)
	for _, code := range codes {
		f.AddString(code)
	}

	r.mu.Lock()
	r.filter = f
	r.mu.Unlock()
	return f, nil
}

func scanPromotion(row pgx.CollectableRow) (*promotion.Promotion, error) {
	var (
		p          promotion.Promotion
		conditions []byte
		actions    []byte
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Enabled, &p.CouponCode, &p.StartsAt, &p.EndsAt,
		&p.PerCustomerLimit, &conditions, &actions, &p.PriorityScore, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(conditions, &p.Conditions); err != nil {
		return nil, fmt.Errorf("unmarshaling conditions of promotion %s: %w", p.ID, err)
	}
	if err := json.Unmarshal(actions, &p.Actions); err != nil {
		return nil, fmt.Errorf("unmarshaling actions of promotion %s: %w", p.ID, err)
	}
	return &p, nil
}

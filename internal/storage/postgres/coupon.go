package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/pizza-kart/internal/domain/coupon"
)

const (
	// Exact match served by coupons_name_key. Pattern operators would let
	// "%" or "_" in a customer's code match someone else's coupon.
	findCouponByNameSQL = `SELECT id, name, discount_type, value, active, uses, usage_limit,
		starts_at, ends_at, min_order_value
		FROM coupons WHERE LOWER(name) = LOWER($1)`

	upsertCouponSQL = `INSERT INTO coupons (id, name, discount_type, value, active, uses,
		usage_limit, starts_at, ends_at, min_order_value)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			discount_type = EXCLUDED.discount_type,
			value = EXCLUDED.value,
			active = EXCLUDED.active,
			usage_limit = EXCLUDED.usage_limit,
			starts_at = EXCLUDED.starts_at,
			ends_at = EXCLUDED.ends_at,
			min_order_value = EXCLUDED.min_order_value`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByName looks a coupon up by name, case-insensitively. Inactive coupons
// are returned too so that callers can tell them apart from unknown ones.
func (r *CouponRepository) FindByName(ctx context.Context, name string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, findCouponByNameSQL, name)
	if err != nil {
		return nil, fmt.Errorf("finding coupon %q: %w", name, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon %q: %w", name, err)
	}
	return &c, nil
}

// Upsert inserts the coupon or updates its definition. The usage counter of
// an existing coupon is left untouched.
func (r *CouponRepository) Upsert(ctx context.Context, c coupon.Coupon) error {
	_, err := r.pool.Exec(ctx, upsertCouponSQL,
		c.ID, c.Name, string(c.Type), c.Value, c.Active, c.Uses,
		c.UsageLimit, c.StartsAt, c.EndsAt, c.MinOrderValue,
	)
	if err != nil {
		return fmt.Errorf("upserting coupon %q: %w", c.Name, err)
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c            coupon.Coupon
		discountType string
		uses         int32
		usageLimit   int32
		startsAt     *time.Time
		endsAt       *time.Time
		minOrder     *decimal.Decimal
	)
	err := row.Scan(
		&c.ID, &c.Name, &discountType, &c.Value, &c.Active, &uses, &usageLimit,
		&startsAt, &endsAt, &minOrder,
	)
	c.Type = coupon.DiscountType(discountType)
	c.Uses = int(uses)
	c.UsageLimit = int(usageLimit)
	c.StartsAt = startsAt
	c.EndsAt = endsAt
	c.MinOrderValue = minOrder
	return c, err
}

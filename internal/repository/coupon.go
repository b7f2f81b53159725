package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/shopfloor/coupon-engine/internal/domain/coupon"
)

const (
	couponColumns = `id, code, active, type, expires_at, single_user, owner_id, usage_count,
		operation, amount, units_allowed, min_total, max_total, countries, roles, group_id`

	getCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`

	getCouponByIDSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1`

	createCouponSQL = `INSERT INTO coupons (code, active, type, expires_at, single_user, owner_id,
		usage_count, operation, amount, units_allowed, min_total, max_total, countries, roles, group_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id`

	// Conditional decrement: concurrent redemptions cannot drive the
	// counter below zero.
	decrementUsageSQL = `UPDATE coupons
		SET usage_count = usage_count - 1
		WHERE id = $1 AND usage_count IS NOT NULL AND usage_count > 0`
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

// FindByCode looks up a coupon by its case-sensitive code.
// Returns coupon.ErrCouponNotFound when no such coupon exists.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrCouponNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return c, nil
}

// FindByID looks up a coupon by id.
// Returns coupon.ErrNoSuchCoupon when no such coupon exists.
func (r *CouponRepository) FindByID(ctx context.Context, id string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by id %q: %w", id, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNoSuchCoupon
		}
		return nil, fmt.Errorf("finding coupon by id %q: %w", id, err)
	}
	return c, nil
}

// Create persists a new coupon and fills in its generated id.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	var groupID *string
	if s, ok := c.Rules.Scope.(coupon.GroupScope); ok {
		groupID = &s.GroupID
	}

	var owner *string
	if c.OwnerID != "" {
		owner = &c.OwnerID
	}

	err := r.pool.QueryRow(ctx, createCouponSQL,
		c.Code, c.Active, string(c.Type), c.ExpiresAt, c.SingleUser, owner,
		c.UsageCount, string(c.Rules.Operation), c.Rules.Amount, c.Rules.UnitsAllowed,
		c.Rules.MinTotal, c.Rules.MaxTotal, c.Rules.Countries, c.Rules.Roles, groupID,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("creating coupon %q: %w", c.Code, err)
	}
	return nil
}

// DecrementUsage atomically burns one use of the coupon, flooring at zero.
func (r *CouponRepository) DecrementUsage(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, decrementUsageSQL, id)
	if err != nil {
		return fmt.Errorf("decrementing usage for coupon %q: %w", id, err)
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (*coupon.Coupon, error) {
	var (
		c            coupon.Coupon
		typ          string
		expiresAt    *time.Time
		owner        *string
		usage        *int32
		operation    string
		amount       decimal.Decimal
		unitsAllowed int32
		minTotal     *decimal.Decimal
		maxTotal     *decimal.Decimal
		countries    []string
		roles        []string
		groupID      *string
	)
	err := row.Scan(
		&c.ID, &c.Code, &c.Active, &typ, &expiresAt, &c.SingleUser, &owner, &usage,
		&operation, &amount, &unitsAllowed, &minTotal, &maxTotal, &countries, &roles, &groupID,
	)
	if err != nil {
		return nil, err
	}

	c.Type = coupon.Type(typ)
	c.ExpiresAt = expiresAt
	if owner != nil {
		c.OwnerID = *owner
	}
	if usage != nil {
		u := int(*usage)
		c.UsageCount = &u
	}

	rules := &coupon.Rules{
		Operation:    coupon.Operation(operation),
		Amount:       amount,
		UnitsAllowed: int(unitsAllowed),
		MinTotal:     minTotal,
		MaxTotal:     maxTotal,
		Countries:    countries,
		Roles:        roles,
	}
	if groupID != nil {
		rules.Scope = coupon.GroupScope{GroupID: *groupID}
	} else {
		rules.Scope = coupon.AllProducts{}
	}
	c.Rules = rules

	return &c, nil
}

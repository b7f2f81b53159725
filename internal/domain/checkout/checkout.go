// Package checkout places orders and drives the coupon engine through its
// validate, allocate, amount, and usage-decrement cycle.
package checkout

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopfloor/coupon-engine/internal/domain/coupon"
)

// Order is a placed customer order with its pricing outcome.
type Order struct {
	ID        string
	UserID    string
	Address   *coupon.Address
	Items     []coupon.LineItem
	Total     decimal.Decimal
	Discounts decimal.Decimal
	Coupons   []UsedCoupon
	CreatedAt time.Time
}

// UsedCoupon records one coupon applied to an order and the amount it cut.
type UsedCoupon struct {
	CouponID string
	Code     string
	Amount   decimal.Decimal
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
}

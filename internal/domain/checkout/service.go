package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shopfloor/coupon-engine/internal/domain/coupon"
)

// Sentinel errors for order validation.
var (
	ErrEmptyItems      = errors.New("items required")
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
)

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	VariantID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for variant %s", e.VariantID)
}

// CouponRequest names a coupon to apply, optionally with line-item targets.
type CouponRequest struct {
	Code    string
	Targets []coupon.Target
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	UserID  string
	Address *coupon.Address
	Items   []coupon.LineItem
	Coupons []CouponRequest
}

// Service encapsulates order placement business logic.
type Service struct {
	engine *coupon.Engine
	orders Repository
}

// NewService creates a checkout Service with the required dependencies.
func NewService(engine *coupon.Engine, orders Repository) *Service {
	return &Service{engine: engine, orders: orders}
}

// PlaceOrder validates the items, applies the requested coupons one at a
// time over a single allocation session, persists the order, and only then
// burns each coupon's usage.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	for i := range req.Items {
		if req.Items[i].Quantity <= 0 {
			return nil, &InvalidQuantityError{VariantID: req.Items[i].VariantID}
		}
	}

	ord := &coupon.Order{
		UserID:  req.UserID,
		Address: req.Address,
		Items:   req.Items,
	}
	app := coupon.NewApplication(ord)

	// Coupons are applied sequentially: each allocation reads the
	// line-item bookkeeping the previous one wrote.
	discounts := decimal.Zero
	used := make([]UsedCoupon, 0, len(req.Coupons))
	for _, cr := range req.Coupons {
		ap, err := s.engine.ValidateCouponToUse(ctx, ord, coupon.Ref{Code: cr.Code}, cr.Targets)
		if err != nil {
			return nil, errors.Wrapf(err, "validate coupon %q", cr.Code)
		}

		lines, err := s.engine.CalculateDiscountLineItems(app, ap)
		if err != nil {
			return nil, errors.Wrapf(err, "allocate coupon %q", cr.Code)
		}

		amount := s.engine.CalculateDiscountAmount(app, lines, ap)
		discounts = discounts.Add(amount)
		used = append(used, UsedCoupon{
			CouponID: ap.Coupon.ID,
			Code:     ap.Coupon.Code,
			Amount:   amount,
		})
	}

	total := ord.ItemTotal().Sub(discounts)
	if total.IsNegative() {
		total = decimal.Zero
	}

	o := &Order{
		ID:        uuid.New().String(),
		UserID:    req.UserID,
		Address:   req.Address,
		Items:     itemSnapshot(app),
		Total:     total.Round(2),
		Discounts: discounts.Round(2),
		Coupons:   used,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	// Usage is burned only once the order is durably stored. A failed
	// decrement must not undo a confirmed order, so it is logged and the
	// order stands.
	for _, u := range used {
		if err := s.engine.DecreaseUsageCountByID(ctx, u.CouponID); err != nil {
			zctx.From(ctx).Warn("coupon usage decrement failed",
				zap.String("coupon_id", u.CouponID),
				zap.String("code", u.Code),
				zap.Error(err),
			)
		}
	}

	return o, nil
}

// itemSnapshot copies the session's working line items, carrying the final
// discount bookkeeping into the persisted order.
func itemSnapshot(app *coupon.Application) []coupon.LineItem {
	working := app.Items()
	items := make([]coupon.LineItem, len(working))
	for i, it := range working {
		items[i] = *it
	}
	return items
}

package coupon

import (
	"context"

	"github.com/shopspring/decimal"
)

// Engine bundles the four coupon operations the checkout workflow consumes:
// validate, allocate, compute amount, decrement usage.
type Engine struct {
	validator *Validator
	calc      *Calculator
	usage     *UsageTracker
}

// NewEngine wires the validator, calculator, and usage tracker over the
// given lookups.
func NewEngine(
	coupons Repository,
	groups GroupRepository,
	countries CountryResolver,
	roles RoleResolver,
	bonus BonusPolicy,
) *Engine {
	return &Engine{
		validator: NewValidator(coupons, groups, countries, roles),
		calc:      NewCalculator(bonus),
		usage:     NewUsageTracker(coupons),
	}
}

// ValidateCouponToUse checks the coupon against the order and returns an
// enriched, allocation-ready coupon or a *Rejection.
func (e *Engine) ValidateCouponToUse(ctx context.Context, ord *Order, ref Ref, targets []Target) (*Applied, error) {
	return e.validator.Validate(ctx, ord, ref, targets)
}

// CalculateDiscountLineItems distributes the validated coupon's discount
// units over the session's line items.
func (e *Engine) CalculateDiscountLineItems(a *Application, ap *Applied) ([]DiscountLine, error) {
	return a.Allocate(ap)
}

// CalculateDiscountAmount converts an allocation into a monetary amount.
func (e *Engine) CalculateDiscountAmount(a *Application, lines []DiscountLine, ap *Applied) decimal.Decimal {
	return e.calc.Amount(a, lines, ap)
}

// DecreaseUsageCountByID burns one use of the coupon. Call only after the
// order that consumed the coupon has committed.
func (e *Engine) DecreaseUsageCountByID(ctx context.Context, id string) error {
	return e.usage.Decrement(ctx, id)
}

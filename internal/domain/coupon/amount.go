package coupon

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// BonusPolicy reports whether a coupon code counts as a "buying bonus".
// Lines discounted by buying-bonus coupons are excluded from the base an
// order-level percentage coupon computes on.
type BonusPolicy func(code string) bool

// Calculator converts allocated discount quantities, or whole-order
// eligibility, into a monetary amount.
type Calculator struct {
	bonus BonusPolicy
}

// NewCalculator creates a Calculator. A nil policy treats no coupon as a
// buying bonus.
func NewCalculator(bonus BonusPolicy) *Calculator {
	if bonus == nil {
		bonus = func(string) bool { return false }
	}
	return &Calculator{bonus: bonus}
}

// Amount computes the monetary discount for one applied coupon. Per-line
// amounts are rounded to 2 decimal places half-up, matching the per-item
// invoice convention; the running total is never rounded in between.
func (c *Calculator) Amount(a *Application, lines []DiscountLine, ap *Applied) decimal.Decimal {
	r := ap.Coupon.Rules
	if r == nil {
		return decimal.Zero
	}

	switch ap.Coupon.Type {
	case TypeOrder:
		return c.orderAmount(a, r)
	case TypeProduct:
		return productAmount(lines, r)
	default:
		return decimal.Zero
	}
}

func (c *Calculator) orderAmount(a *Application, r *Rules) decimal.Decimal {
	switch r.Operation {
	case OpPercentOff:
		base := a.order.ItemTotal().Sub(c.bonusTotal(a))
		return base.Mul(r.Amount).Div(hundred).Round(2)
	case OpAmountOff:
		// Flat amount, independent of order size.
		return r.Amount.Round(2)
	default:
		return decimal.Zero
	}
}

func productAmount(lines []DiscountLine, r *Rules) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		qty := decimal.NewFromInt(int64(l.Quantity))
		switch r.Operation {
		case OpPercentOff:
			sum = sum.Add(l.Price.Mul(qty).Mul(r.Amount).Div(hundred).Round(2))
		case OpAmountOff:
			sum = sum.Add(r.Amount.Mul(qty).Round(2))
		}
	}
	return sum
}

// bonusTotal sums price times quantity of every line already discounted by
// a buying-bonus coupon on the same application session.
func (c *Calculator) bonusTotal(a *Application) decimal.Decimal {
	sum := decimal.Zero
	for _, ap := range a.applied {
		if !c.bonus(ap.Coupon.Code) {
			continue
		}
		for _, l := range ap.lines {
			sum = sum.Add(l.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
		}
	}
	return sum
}

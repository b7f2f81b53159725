package coupon

import "context"

// UsageTracker decrements a coupon's remaining usage budget. It must be
// invoked at most once per confirmed use, after the enclosing order has
// been durably committed; an abandoned allocation must never reach it.
type UsageTracker struct {
	coupons Repository
}

// NewUsageTracker creates a UsageTracker backed by the given repository.
func NewUsageTracker(coupons Repository) *UsageTracker {
	return &UsageTracker{coupons: coupons}
}

// Decrement reduces the coupon's usage counter by exactly one. Unlimited
// (nil) and already exhausted counters are left untouched. Returns
// ErrNoSuchCoupon when the id is unknown.
//
// The storage-level decrement is conditional on the counter being positive,
// so concurrent redemptions cannot drive it below zero.
func (t *UsageTracker) Decrement(ctx context.Context, id string) error {
	c, err := t.coupons.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if c.UsageCount == nil || *c.UsageCount <= 0 {
		return nil
	}
	return t.coupons.DecrementUsage(ctx, id)
}

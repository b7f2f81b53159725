package coupon

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
)

// Validator applies the ordered coupon eligibility checks. Reference data
// (coupon, product group, country and role codes) comes from the injected
// lookups; the rule evaluation itself is pure.
type Validator struct {
	coupons   Repository
	groups    GroupRepository
	countries CountryResolver
	roles     RoleResolver
	now       func() time.Time
}

// NewValidator creates a Validator backed by the given lookups.
func NewValidator(
	coupons Repository,
	groups GroupRepository,
	countries CountryResolver,
	roles RoleResolver,
) *Validator {
	return &Validator{
		coupons:   coupons,
		groups:    groups,
		countries: countries,
		roles:     roles,
		now:       time.Now,
	}
}

// Validate runs the eligibility checks in order, short-circuiting on the
// first failure. On success it returns the coupon with its product group
// resolved and the caller-supplied targets attached for the allocator.
func (v *Validator) Validate(ctx context.Context, ord *Order, ref Ref, targets []Target) (*Applied, error) {
	c := ref.Coupon
	if c == nil {
		if ref.Code == "" {
			return nil, ErrCouponNotFound
		}
		found, err := v.coupons.FindByCode(ctx, ref.Code)
		if err != nil {
			return nil, err
		}
		c = found
	}

	if !c.Active {
		return nil, ErrCouponInactive
	}
	if c.ExpiresAt != nil && !c.ExpiresAt.After(v.now()) {
		return nil, ErrCouponExpired
	}
	if c.SingleUser && c.OwnerID != ord.UserID {
		return nil, ErrCouponNotOwned
	}
	if c.UsageCount != nil && *c.UsageCount <= 0 {
		return nil, ErrCouponUsageExceeded
	}

	r := c.Rules
	if !r.wellFormed() {
		return nil, ErrCouponRulesInvalid
	}

	if r.MinTotal != nil || r.MaxTotal != nil {
		total := ord.ItemTotal()
		if r.MinTotal != nil && total.LessThan(*r.MinTotal) {
			return nil, ErrCouponOrderTotalNotMet
		}
		if r.MaxTotal != nil && total.GreaterThan(*r.MaxTotal) {
			return nil, ErrCouponOrderTotalNotMet
		}
	}

	if len(r.Countries) > 0 {
		// A country rule with no shipping address is a failure, not a skip.
		if ord.Address == nil {
			return nil, ErrCouponCountryNotAllowed
		}
		iso, err := v.countries.CountryCode(ctx, ord.Address.CountryID)
		if err != nil {
			return nil, errors.Wrap(err, "resolve shipping country")
		}
		if !slices.Contains(r.Countries, iso) {
			return nil, ErrCouponCountryNotAllowed
		}
	}

	if len(r.Roles) > 0 {
		if len(ord.Items) == 0 {
			return nil, ErrCouponRoleNotAllowed
		}
		role, err := v.roles.RoleCode(ctx, ord.Items[0].CatalogCode)
		if err != nil {
			return nil, errors.Wrap(err, "resolve catalog role")
		}
		if !slices.Contains(r.Roles, role) {
			return nil, ErrCouponRoleNotAllowed
		}
	}

	applied := &Applied{Coupon: c, Targets: targets}

	if s, ok := r.Scope.(GroupScope); ok {
		g, err := v.groups.FindByID(ctx, s.GroupID)
		if err != nil {
			return nil, errors.Wrap(err, "resolve product group")
		}
		if !coversAny(g, ord.Items) {
			return nil, ErrCouponNoEligibleProduct
		}
		applied.Group = g
	}

	return applied, nil
}

// coversAny reports whether at least one order line item is covered by the
// group.
func coversAny(g *ProductGroup, items []LineItem) bool {
	for i := range items {
		if g.Contains(items[i].CatalogID, items[i].ProductID) {
			return true
		}
	}
	return false
}

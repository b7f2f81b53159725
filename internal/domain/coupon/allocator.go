package coupon

import "sort"

// Application is one order's coupon-application cycle. It owns working
// copies of the order's line items, so allocation never mutates caller
// state, and it carries the per-line discount bookkeeping shared by
// successive coupons on the same order.
//
// An Application must not be shared across goroutines: multiple coupons on
// one order are applied sequentially because each allocation reads the
// bookkeeping the previous one wrote.
type Application struct {
	order   *Order
	items   []*LineItem
	applied []*Applied
}

// NewApplication snapshots the order's line items with the discount
// bookkeeping reset to zero.
func NewApplication(ord *Order) *Application {
	items := make([]*LineItem, len(ord.Items))
	for i := range ord.Items {
		it := ord.Items[i]
		it.DiscountQuantity = 0
		items[i] = &it
	}
	return &Application{order: ord, items: items}
}

// Items returns the working line items with their current bookkeeping.
func (a *Application) Items() []*LineItem { return a.items }

// Applied returns the coupons applied on this session so far, in order.
func (a *Application) Applied() []*Applied { return a.applied }

// Allocate distributes the coupon's allowed discount units across eligible
// line items and memoizes the result on the coupon. A coupon instance that
// already carries an allocation is returned unchanged, without touching the
// bookkeeping again.
//
// Order-type coupons yield an empty allocation: the amount calculator
// derives their discount from the order total directly.
func (a *Application) Allocate(ap *Applied) ([]DiscountLine, error) {
	if ap.allocated {
		return ap.lines, nil
	}

	if ap.Coupon.Type == TypeOrder {
		a.record(ap, nil)
		return nil, nil
	}

	eligible := a.eligibleItems(ap)

	units := 0
	if ap.Coupon.Rules != nil {
		units = ap.Coupon.Rules.UnitsAllowed
	}

	if len(ap.Targets) > 0 {
		lines, err := allocateTargets(eligible, ap.Targets, units)
		if err != nil {
			return nil, err
		}
		a.record(ap, lines)
		return lines, nil
	}

	lines := allocateGreedy(eligible, units)
	a.record(ap, lines)
	return lines, nil
}

func (a *Application) record(ap *Applied, lines []DiscountLine) {
	ap.lines = lines
	ap.allocated = true
	a.applied = append(a.applied, ap)
}

// eligibleItems returns the working items the coupon may touch, preserving
// original order list order.
func (a *Application) eligibleItems(ap *Applied) []*LineItem {
	if ap.Group == nil {
		return a.items
	}
	var out []*LineItem
	for _, it := range a.items {
		if ap.Group.Contains(it.CatalogID, it.ProductID) {
			out = append(out, it)
		}
	}
	return out
}

// allocateGreedy spends the allowed units on the most expensive units
// first, maximizing the discount value. The sort is stable, so items with
// equal prices keep their original list position.
func allocateGreedy(items []*LineItem, units int) []DiscountLine {
	sorted := make([]*LineItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Price.GreaterThan(sorted[j].Price)
	})

	var lines []DiscountLine
	for _, it := range sorted {
		if units <= 0 {
			break
		}
		n := min(units, it.Remaining())
		if n <= 0 {
			continue
		}
		it.DiscountQuantity += n
		units -= n
		lines = append(lines, discountLine(it, n))
	}
	return lines
}

// allocateTargets honors caller-specified catalog/variant targets. Each
// target is clamped to the coupon's allowed units and then discharged
// against matching line items until fulfilled or no match remains; an
// under-fulfilled target is not an error.
func allocateTargets(items []*LineItem, targets []Target, units int) ([]DiscountLine, error) {
	var lines []DiscountLine
	for _, tg := range targets {
		if findAnchor(items, tg) == nil {
			return nil, ErrCouponNotApplicableToVariant
		}

		want := min(tg.Quantity, units)
		done := 0
		for done < want {
			it := nextMatch(items, tg, want-done)
			if it == nil {
				break
			}
			n := min(want-done, it.Remaining())
			if n <= 0 {
				break
			}
			it.DiscountQuantity += n
			done += n
			lines = append(lines, discountLine(it, n))
		}
	}
	return lines, nil
}

// findAnchor locates an eligible line item for the target's catalog code
// and variant id, regardless of its bookkeeping state.
func findAnchor(items []*LineItem, tg Target) *LineItem {
	for _, it := range items {
		if matchesVariant(it, tg) {
			return it
		}
	}
	return nil
}

// nextMatch selects the line item absorbing the next chunk of the target.
// Tier order is load-bearing: it decides which physical line carries the
// discount on the invoice when several candidates tie.
func nextMatch(items []*LineItem, tg Target, remaining int) *LineItem {
	// Untouched line whose full quantity equals the remaining target.
	for _, it := range items {
		if matchesVariant(it, tg) && it.DiscountQuantity == 0 && it.Quantity == remaining {
			return it
		}
	}
	// Line whose undiscounted remainder equals the remaining target.
	for _, it := range items {
		if matchesVariant(it, tg) && it.Remaining() == remaining {
			return it
		}
	}
	// Any line of the variant with capacity left, in list order.
	for _, it := range items {
		if matchesVariant(it, tg) && it.Remaining() > 0 {
			return it
		}
	}
	return nil
}

func matchesVariant(it *LineItem, tg Target) bool {
	return it.CatalogCode == tg.CatalogCode && it.VariantID == tg.VariantID
}

func discountLine(it *LineItem, qty int) DiscountLine {
	return DiscountLine{
		Item:      it,
		CatalogID: it.CatalogID,
		VariantID: it.VariantID,
		Price:     it.Price,
		Quantity:  qty,
	}
}

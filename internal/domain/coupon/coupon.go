package coupon

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Type distinguishes whole-order coupons from line-item scoped coupons.
type Type string

const (
	// TypeOrder discounts the order total directly; no line items are touched.
	TypeOrder Type = "order"
	// TypeProduct distributes discount units across eligible line items.
	TypeProduct Type = "product"
)

// Operation enumerates the supported monetary discount operations.
type Operation string

const (
	// OpPercentOff discounts a percentage of the covered amount.
	OpPercentOff Operation = "percent_off"
	// OpAmountOff discounts a fixed monetary amount.
	OpAmountOff Operation = "amount_off"
)

// Coupon is a discount voucher with its eligibility rules.
type Coupon struct {
	ID         string
	Code       string
	Active     bool
	Type       Type
	ExpiresAt  *time.Time
	SingleUser bool
	OwnerID    string
	// UsageCount is the remaining usage budget. Nil means unlimited;
	// zero or negative means exhausted.
	UsageCount *int
	Rules      *Rules
}

// Scope restricts which products a coupon's discount may touch.
type Scope interface {
	isScope()
}

// AllProducts covers every product in every catalog.
type AllProducts struct{}

func (AllProducts) isScope() {}

// GroupScope covers only the catalog/product pairs of one product group.
type GroupScope struct {
	GroupID string
}

func (GroupScope) isScope() {}

// Rules defines a coupon's discount behaviour and eligibility constraints.
type Rules struct {
	Operation Operation
	// Amount is the operation argument: a percentage for OpPercentOff,
	// a monetary value for OpAmountOff. Always > 0.
	Amount decimal.Decimal
	// UnitsAllowed caps the total quantity a single coupon use may
	// discount, shared across all line items of the order.
	UnitsAllowed int
	MinTotal     *decimal.Decimal
	MaxTotal     *decimal.Decimal
	// Countries lists allowed shipping country ISO codes. Empty = no limit.
	Countries []string
	// Roles lists allowed catalog role codes. Empty = no limit.
	Roles []string
	// Scope is nil or AllProducts for unrestricted coupons.
	Scope Scope
}

// wellFormed reports whether the rules carry the fields every coupon needs.
func (r *Rules) wellFormed() bool {
	return r != nil && r.Operation != "" && r.Amount.IsPositive()
}

// ProductGroup is a named set of catalog/product pairs a product-scoped
// coupon may discount. Immutable during a validation/allocation cycle.
type ProductGroup struct {
	ID       string
	Name     string
	Products []GroupProduct
}

// GroupProduct identifies one product of a product group.
type GroupProduct struct {
	CatalogID string
	ProductID string
}

// Contains reports whether the pair is covered by the group.
// Linear scan: groups hold tens to low hundreds of entries.
func (g *ProductGroup) Contains(catalogID, productID string) bool {
	for _, p := range g.Products {
		if p.CatalogID == catalogID && p.ProductID == productID {
			return true
		}
	}
	return false
}

// Address is the order's shipping destination. CountryID references the
// country record a CountryResolver maps to an ISO code.
type Address struct {
	CountryID string
	City      string
	Street    string
	Zip       string
}

// Order is the engine's view of an order under coupon application.
type Order struct {
	UserID  string
	Address *Address
	Items   []LineItem
}

// ItemTotal returns the sum of price times quantity across all line items.
func (o *Order) ItemTotal() decimal.Decimal {
	sum := decimal.Zero
	for i := range o.Items {
		it := &o.Items[i]
		sum = sum.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return sum
}

// LineItem is one product/variant entry on an order.
type LineItem struct {
	CatalogCode string
	CatalogID   string
	ProductID   string
	VariantID   string
	Price       decimal.Decimal
	Quantity    int
	// DiscountQuantity is the portion of Quantity already consumed by
	// discounts. Maintained by the allocation session; always within
	// [0, Quantity].
	DiscountQuantity int
}

// Remaining returns the undiscounted portion of the line's quantity.
func (it *LineItem) Remaining() int {
	return it.Quantity - it.DiscountQuantity
}

// Target is a caller-requested distribution of discount quantity to a
// specific catalog/variant.
type Target struct {
	CatalogCode string
	VariantID   string
	Quantity    int
}

// DiscountLine records that a coupon application discounted Quantity units
// of one working line item. It is a computation artifact consumed by the
// amount calculator, never persisted on its own.
type DiscountLine struct {
	Item      *LineItem
	CatalogID string
	VariantID string
	Price     decimal.Decimal
	Quantity  int
}

// Ref identifies the coupon to validate: an already-loaded coupon, or a
// code to resolve through the repository.
type Ref struct {
	Coupon *Coupon
	Code   string
}

// Applied is a coupon that passed validation: its product group is resolved
// and any caller-supplied targets are attached for the allocator.
type Applied struct {
	Coupon *Coupon
	// Group is the resolved product group, nil when the coupon covers
	// all products.
	Group   *ProductGroup
	Targets []Target

	// Allocation memo, set once by Application.Allocate.
	lines     []DiscountLine
	allocated bool
}

// Lines returns the memoized allocation, or nil if the coupon has not been
// allocated yet.
func (a *Applied) Lines() []DiscountLine {
	return a.lines
}

// Repository provides coupon lookup and usage mutation.
type Repository interface {
	// FindByCode resolves a coupon by its case-sensitive code.
	// Returns ErrCouponNotFound when no such coupon exists.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	// FindByID resolves a coupon by id.
	// Returns ErrNoSuchCoupon when no such coupon exists.
	FindByID(ctx context.Context, id string) (*Coupon, error)
	// DecrementUsage atomically reduces the usage counter by one, never
	// below zero. A no-op for unlimited or exhausted coupons.
	DecrementUsage(ctx context.Context, id string) error
}

// GroupRepository provides product group lookup.
type GroupRepository interface {
	FindByID(ctx context.Context, id string) (*ProductGroup, error)
}

// CountryResolver maps a shipping address country reference to its ISO code.
type CountryResolver interface {
	CountryCode(ctx context.Context, countryID string) (string, error)
}

// RoleResolver maps a catalog code to the role code its orders carry.
type RoleResolver interface {
	RoleCode(ctx context.Context, catalogCode string) (string, error)
}

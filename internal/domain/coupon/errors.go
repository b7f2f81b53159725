package coupon

import (
	"net/http"

	"github.com/go-faster/errors"
)

// Reason is a machine-readable code explaining why a coupon was rejected.
type Reason string

const (
	ReasonNotFound             Reason = "coupon_not_found"
	ReasonInactive             Reason = "coupon_inactive"
	ReasonExpired              Reason = "coupon_expired"
	ReasonNotOwned             Reason = "coupon_not_owned"
	ReasonUsageExceeded        Reason = "coupon_usage_exceeded"
	ReasonRulesInvalid         Reason = "coupon_rules_invalid"
	ReasonOrderTotalNotMet     Reason = "coupon_order_total_not_met"
	ReasonCountryNotAllowed    Reason = "coupon_country_not_allowed"
	ReasonRoleNotAllowed       Reason = "coupon_role_not_allowed"
	ReasonNoEligibleProduct    Reason = "coupon_no_eligible_product"
	ReasonNotApplicableVariant Reason = "coupon_not_applicable_to_variant"
)

// Rejection is a terminal validation failure. The first failed check aborts
// the whole validation; no partial results are produced.
type Rejection struct {
	Reason Reason
	// Status is an HTTP status hint for callers surfacing the rejection.
	Status int
	msg    string
}

func (e *Rejection) Error() string { return e.msg }

// Is matches any rejection carrying the same reason, so sentinel rejections
// work with errors.Is.
func (e *Rejection) Is(target error) bool {
	var t *Rejection
	if errors.As(target, &t) {
		return t.Reason == e.Reason
	}
	return false
}

func reject(reason Reason, msg string) *Rejection {
	return &Rejection{Reason: reason, Status: http.StatusBadRequest, msg: msg}
}

// Sentinel rejections, one per validator check.
var (
	ErrCouponNotFound          = reject(ReasonNotFound, "coupon not found")
	ErrCouponInactive          = reject(ReasonInactive, "coupon is not active")
	ErrCouponExpired           = reject(ReasonExpired, "coupon expired")
	ErrCouponNotOwned          = reject(ReasonNotOwned, "coupon belongs to another user")
	ErrCouponUsageExceeded     = reject(ReasonUsageExceeded, "coupon usage limit reached")
	ErrCouponRulesInvalid      = reject(ReasonRulesInvalid, "coupon rules are malformed")
	ErrCouponOrderTotalNotMet  = reject(ReasonOrderTotalNotMet, "order total outside coupon bounds")
	ErrCouponCountryNotAllowed = reject(ReasonCountryNotAllowed, "coupon not valid for shipping country")
	ErrCouponRoleNotAllowed    = reject(ReasonRoleNotAllowed, "coupon not valid for this role")
	ErrCouponNoEligibleProduct = reject(ReasonNoEligibleProduct, "no order item is covered by the coupon")

	// ErrCouponNotApplicableToVariant is raised by targeted allocation when
	// a requested variant has no eligible line item at all.
	ErrCouponNotApplicableToVariant = reject(ReasonNotApplicableVariant, "coupon not applicable to requested variant")
)

// ErrNoSuchCoupon is returned by id lookups when the coupon does not exist.
// Callers surface it as 404.
var ErrNoSuchCoupon = errors.New("no such coupon")

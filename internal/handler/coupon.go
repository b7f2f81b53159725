package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/otel/metric"

	"github.com/shopfloor/coupon-engine/internal/domain/coupon"
)

// CreateCoupon handles POST /api/coupons.
func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	c, err := decodeCoupon(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if msg := validateNewCoupon(c); msg != "" {
		writeError(w, http.StatusBadRequest, "invalid_coupon", msg)
		return
	}

	if err := h.coupons.Create(r.Context(), c); err != nil {
		writeInternalError(w, r, err)
		return
	}

	e := &jx.Encoder{}
	encodeCoupon(e, c)
	writeJSON(w, http.StatusCreated, e)
}

// GetCoupon handles GET /api/coupons/{code}.
func (h *Handler) GetCoupon(w http.ResponseWriter, r *http.Request) {
	c, err := h.coupons.FindByCode(r.Context(), r.PathValue("code"))
	if err != nil {
		if errors.Is(err, coupon.ErrCouponNotFound) {
			writeError(w, http.StatusNotFound, "coupon_not_found", "no such coupon")
			return
		}
		writeInternalError(w, r, err)
		return
	}

	e := &jx.Encoder{}
	encodeCoupon(e, c)
	writeJSON(w, http.StatusOK, e)
}

// ValidateCoupon handles POST /api/coupons/validate: a dry run of the
// validate/allocate/amount cycle against a caller-supplied order, with no
// persistence and no usage decrement.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	req, err := decodeValidateRequest(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	ctx, span := h.tracer.Start(r.Context(), "ValidateCoupon")
	defer span.End()

	ap, err := h.engine.ValidateCouponToUse(ctx, req.order, coupon.Ref{Code: req.code}, req.targets)
	if err != nil {
		h.metrics.validations.Add(ctx, 1, metric.WithAttributes(outcomeAttr(false)))
		writeDomainError(w, r, err)
		return
	}
	h.metrics.validations.Add(ctx, 1, metric.WithAttributes(outcomeAttr(true)))

	app := coupon.NewApplication(req.order)
	lines, err := h.engine.CalculateDiscountLineItems(app, ap)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	amount := h.engine.CalculateDiscountAmount(app, lines, ap)

	e := &jx.Encoder{}
	e.ObjStart()
	e.FieldStart("valid")
	e.Bool(true)
	e.FieldStart("code")
	e.Str(ap.Coupon.Code)
	e.FieldStart("amount")
	encodeDecimal(e, amount)
	e.FieldStart("discount_lines")
	encodeDiscountLines(e, lines)
	e.ObjEnd()
	writeJSON(w, http.StatusOK, e)
}

// validateNewCoupon enforces creation-time input rules. Returns an empty
// string when the coupon is acceptable.
func validateNewCoupon(c *coupon.Coupon) string {
	if c.Code == "" {
		return "code is required"
	}
	if c.Type != coupon.TypeOrder && c.Type != coupon.TypeProduct {
		return "type must be order or product"
	}
	r := c.Rules
	if r == nil {
		return "rules are required"
	}
	if r.Operation != coupon.OpPercentOff && r.Operation != coupon.OpAmountOff {
		return "operation must be percent_off or amount_off"
	}
	if !r.Amount.IsPositive() {
		return "operation amount must be greater than 0"
	}
	if c.Type == coupon.TypeProduct && r.UnitsAllowed <= 0 {
		return "units allowed must be greater than 0"
	}
	return ""
}

func decodeCoupon(data []byte) (*coupon.Coupon, error) {
	c := &coupon.Coupon{Active: true}
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			c.Code, err = d.Str()
		case "active":
			c.Active, err = d.Bool()
		case "type":
			var s string
			if s, err = d.Str(); err == nil {
				c.Type = coupon.Type(s)
			}
		case "expires_at":
			var s string
			if s, err = d.Str(); err == nil {
				var t time.Time
				if t, err = time.Parse(time.RFC3339, s); err == nil {
					c.ExpiresAt = &t
				}
			}
		case "single_user":
			c.SingleUser, err = d.Bool()
		case "owner_id":
			c.OwnerID, err = d.Str()
		case "usage_count":
			if d.Next() == jx.Null {
				return d.Null()
			}
			var n int
			if n, err = d.Int(); err == nil {
				c.UsageCount = &n
			}
		case "rules":
			c.Rules, err = decodeRules(d)
		default:
			return d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode coupon")
	}
	return c, nil
}

func decodeRules(d *jx.Decoder) (*coupon.Rules, error) {
	r := &coupon.Rules{Scope: coupon.AllProducts{}}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "operation":
			var s string
			if s, err = d.Str(); err == nil {
				r.Operation = coupon.Operation(s)
			}
		case "amount":
			r.Amount, err = decodeDecimal(d)
		case "units_allowed":
			r.UnitsAllowed, err = d.Int()
		case "min_total":
			if d.Next() == jx.Null {
				return d.Null()
			}
			m, derr := decodeDecimal(d)
			if derr != nil {
				return derr
			}
			r.MinTotal = &m
		case "max_total":
			if d.Next() == jx.Null {
				return d.Null()
			}
			m, derr := decodeDecimal(d)
			if derr != nil {
				return derr
			}
			r.MaxTotal = &m
		case "countries":
			r.Countries, err = decodeStrings(d)
		case "roles":
			r.Roles, err = decodeStrings(d)
		case "group_id":
			var s string
			if s, err = d.Str(); err == nil && s != "" {
				r.Scope = coupon.GroupScope{GroupID: s}
			}
		default:
			return d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func encodeCoupon(e *jx.Encoder, c *coupon.Coupon) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(c.ID)
	e.FieldStart("code")
	e.Str(c.Code)
	e.FieldStart("active")
	e.Bool(c.Active)
	e.FieldStart("type")
	e.Str(string(c.Type))
	if c.ExpiresAt != nil {
		e.FieldStart("expires_at")
		e.Str(c.ExpiresAt.Format(time.RFC3339))
	}
	e.FieldStart("single_user")
	e.Bool(c.SingleUser)
	if c.OwnerID != "" {
		e.FieldStart("owner_id")
		e.Str(c.OwnerID)
	}
	if c.UsageCount != nil {
		e.FieldStart("usage_count")
		e.Int(*c.UsageCount)
	}
	if c.Rules != nil {
		e.FieldStart("rules")
		encodeRules(e, c.Rules)
	}
	e.ObjEnd()
}

func encodeRules(e *jx.Encoder, r *coupon.Rules) {
	e.ObjStart()
	e.FieldStart("operation")
	e.Str(string(r.Operation))
	e.FieldStart("amount")
	encodeDecimal(e, r.Amount)
	e.FieldStart("units_allowed")
	e.Int(r.UnitsAllowed)
	if r.MinTotal != nil {
		e.FieldStart("min_total")
		encodeDecimal(e, *r.MinTotal)
	}
	if r.MaxTotal != nil {
		e.FieldStart("max_total")
		encodeDecimal(e, *r.MaxTotal)
	}
	if len(r.Countries) > 0 {
		e.FieldStart("countries")
		e.ArrStart()
		for _, s := range r.Countries {
			e.Str(s)
		}
		e.ArrEnd()
	}
	if len(r.Roles) > 0 {
		e.FieldStart("roles")
		e.ArrStart()
		for _, s := range r.Roles {
			e.Str(s)
		}
		e.ArrEnd()
	}
	if s, ok := r.Scope.(coupon.GroupScope); ok {
		e.FieldStart("group_id")
		e.Str(s.GroupID)
	}
	e.ObjEnd()
}

func encodeDiscountLines(e *jx.Encoder, lines []coupon.DiscountLine) {
	e.ArrStart()
	for _, l := range lines {
		e.ObjStart()
		e.FieldStart("catalog_id")
		e.Str(l.CatalogID)
		e.FieldStart("variant_id")
		e.Str(l.VariantID)
		e.FieldStart("price")
		encodeDecimal(e, l.Price)
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		e.ObjEnd()
	}
	e.ArrEnd()
}

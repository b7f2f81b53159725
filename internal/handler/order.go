package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/shopfloor/coupon-engine/internal/domain/checkout"
	"github.com/shopfloor/coupon-engine/internal/domain/coupon"
)

// PlaceOrder handles POST /api/orders.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	req, err := decodePlaceOrderRequest(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	ctx, span := h.tracer.Start(r.Context(), "PlaceOrder")
	defer span.End()

	ord, err := h.checkout.PlaceOrder(ctx, *req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.metrics.ordersPlaced.Add(ctx, 1)
	h.metrics.couponsApplied.Add(ctx, int64(len(ord.Coupons)))

	e := &jx.Encoder{}
	encodeOrder(e, ord)
	writeJSON(w, http.StatusCreated, e)
}

type validateRequest struct {
	order   *coupon.Order
	code    string
	targets []coupon.Target
}

func decodeValidateRequest(data []byte) (*validateRequest, error) {
	req := &validateRequest{}
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "order":
			req.order, err = decodeOrder(d)
		case "code":
			req.code, err = d.Str()
		case "targets":
			req.targets, err = decodeTargets(d)
		default:
			return d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode validate request")
	}
	if req.order == nil {
		return nil, errors.New("order is required")
	}
	return req, nil
}

func decodePlaceOrderRequest(data []byte) (*checkout.PlaceOrderRequest, error) {
	req := &checkout.PlaceOrderRequest{}
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "user_id":
			req.UserID, err = d.Str()
		case "address":
			req.Address, err = decodeAddress(d)
		case "items":
			req.Items, err = decodeItems(d)
		case "coupons":
			return d.Arr(func(d *jx.Decoder) error {
				cr := checkout.CouponRequest{}
				err := d.Obj(func(d *jx.Decoder, key string) error {
					var err error
					switch key {
					case "code":
						cr.Code, err = d.Str()
					case "targets":
						cr.Targets, err = decodeTargets(d)
					default:
						return d.Skip()
					}
					return err
				})
				if err != nil {
					return err
				}
				req.Coupons = append(req.Coupons, cr)
				return nil
			})
		default:
			return d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode order request")
	}
	return req, nil
}

func decodeOrder(d *jx.Decoder) (*coupon.Order, error) {
	ord := &coupon.Order{}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "user_id":
			ord.UserID, err = d.Str()
		case "address":
			ord.Address, err = decodeAddress(d)
		case "items":
			ord.Items, err = decodeItems(d)
		default:
			return d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return ord, nil
}

func decodeAddress(d *jx.Decoder) (*coupon.Address, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	addr := &coupon.Address{}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "country_id":
			addr.CountryID, err = d.Str()
		case "city":
			addr.City, err = d.Str()
		case "street":
			addr.Street, err = d.Str()
		case "zip":
			addr.Zip, err = d.Str()
		default:
			return d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return addr, nil
}

func decodeItems(d *jx.Decoder) ([]coupon.LineItem, error) {
	var items []coupon.LineItem
	err := d.Arr(func(d *jx.Decoder) error {
		var it coupon.LineItem
		err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "catalog_code":
				it.CatalogCode, err = d.Str()
			case "catalog_id":
				it.CatalogID, err = d.Str()
			case "product_id":
				it.ProductID, err = d.Str()
			case "variant_id":
				it.VariantID, err = d.Str()
			case "price":
				it.Price, err = decodeDecimal(d)
			case "quantity":
				it.Quantity, err = d.Int()
			default:
				return d.Skip()
			}
			return err
		})
		if err != nil {
			return err
		}
		items = append(items, it)
		return nil
	})
	return items, err
}

func decodeTargets(d *jx.Decoder) ([]coupon.Target, error) {
	var targets []coupon.Target
	err := d.Arr(func(d *jx.Decoder) error {
		var t coupon.Target
		err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "catalog_code":
				t.CatalogCode, err = d.Str()
			case "variant_id":
				t.VariantID, err = d.Str()
			case "quantity":
				t.Quantity, err = d.Int()
			default:
				return d.Skip()
			}
			return err
		})
		if err != nil {
			return err
		}
		targets = append(targets, t)
		return nil
	})
	return targets, err
}

func encodeOrder(e *jx.Encoder, ord *checkout.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(ord.ID)
	e.FieldStart("user_id")
	e.Str(ord.UserID)
	e.FieldStart("total")
	encodeDecimal(e, ord.Total)
	e.FieldStart("discounts")
	encodeDecimal(e, ord.Discounts)
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range ord.Items {
		e.ObjStart()
		e.FieldStart("catalog_id")
		e.Str(it.CatalogID)
		e.FieldStart("product_id")
		e.Str(it.ProductID)
		e.FieldStart("variant_id")
		e.Str(it.VariantID)
		e.FieldStart("price")
		encodeDecimal(e, it.Price)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.FieldStart("discount_quantity")
		e.Int(it.DiscountQuantity)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("coupons")
	e.ArrStart()
	for _, c := range ord.Coupons {
		e.ObjStart()
		e.FieldStart("code")
		e.Str(c.Code)
		e.FieldStart("amount")
		encodeDecimal(e, c.Amount)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("created_at")
	e.Str(ord.CreatedAt.Format(time.RFC3339))
	e.ObjEnd()
}

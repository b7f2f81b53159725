//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestPlaceOrder_WithProductCoupon(t *testing.T) {
	resp := doPostAuth(t, "/api/orders", map[string]any{
		"user_id": "u-order-1",
		"items": []any{
			item("sandal", 40, 2),
			item("sneaker", 60, 1),
		},
		"coupons": []any{
			map[string]any{"code": "SUMMER25"},
		},
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	order := decodeJSON[orderResponse](t, resp)
	if order.ID == "" {
		t.Fatal("expected order id")
	}
	// 25% off all 3 units: 60*0.25 + 80*0.25 = 35.00 off 140.00.
	if order.Discounts != 35.0 {
		t.Fatalf("expected discounts 35.00, got %v", order.Discounts)
	}
	if order.Total != 105.0 {
		t.Fatalf("expected total 105.00, got %v", order.Total)
	}
	if len(order.Coupons) != 1 || order.Coupons[0].Code != "SUMMER25" {
		t.Fatalf("unexpected coupons: %+v", order.Coupons)
	}

	var discounted int
	for _, it := range order.Items {
		discounted += it.DiscountQuantity
	}
	if discounted != 3 {
		t.Fatalf("expected 3 discounted units, got %d", discounted)
	}
}

func TestPlaceOrder_TargetedCoupon(t *testing.T) {
	resp := doPostAuth(t, "/api/orders", map[string]any{
		"user_id": "u-order-2",
		"items": []any{
			item("sandal", 40, 2),
			item("sneaker", 60, 1),
		},
		"coupons": []any{
			map[string]any{
				"code": "SUMMER25",
				"targets": []any{
					map[string]any{"catalog_code": "web", "variant_id": "sandal", "quantity": 2},
				},
			},
		},
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	order := decodeJSON[orderResponse](t, resp)
	// Only the targeted 2 sandal units are discounted: 80 * 25% = 20.00.
	if order.Discounts != 20.0 {
		t.Fatalf("expected discounts 20.00, got %v", order.Discounts)
	}

	for _, it := range order.Items {
		if it.VariantID == "sneaker" && it.DiscountQuantity != 0 {
			t.Fatalf("sneaker must stay undiscounted, got %d", it.DiscountQuantity)
		}
	}
}

func TestPlaceOrder_RoleRule(t *testing.T) {
	b2bItem := map[string]any{
		"catalog_code": "b2b",
		"catalog_id":   "cat-shoes",
		"product_id":   "p-sandal",
		"variant_id":   "sandal",
		"price":        40,
		"quantity":     2,
	}

	okResp := doPostAuth(t, "/api/orders", map[string]any{
		"user_id": "u-order-3",
		"items":   []any{b2bItem},
		"coupons": []any{map[string]any{"code": "TRADE20"}},
	})
	defer okResp.Body.Close()
	if okResp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 for wholesale catalog, got %d", okResp.StatusCode)
	}

	rejResp := doPostAuth(t, "/api/orders", map[string]any{
		"user_id": "u-order-3",
		"items":   []any{item("sandal", 40, 2)},
		"coupons": []any{map[string]any{"code": "TRADE20"}},
	})
	defer rejResp.Body.Close()
	if rejResp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for retail catalog, got %d", rejResp.StatusCode)
	}
	rej := decodeJSON[errorResponse](t, rejResp)
	if rej.Code != "coupon_role_not_allowed" {
		t.Fatalf("expected coupon_role_not_allowed, got %q", rej.Code)
	}
}

func TestPlaceOrder_UsageExhausted(t *testing.T) {
	createResp := doPostAuth(t, "/api/coupons", map[string]any{
		"code":        "ONCEONLY",
		"type":        "order",
		"usage_count": 1,
		"rules": map[string]any{
			"operation": "percent_off",
			"amount":    5,
		},
	})
	createResp.Body.Close()
	if createResp.StatusCode != http.StatusCreated {
		t.Fatalf("create coupon: expected 201, got %d", createResp.StatusCode)
	}

	placeOrder := func() *http.Response {
		return doPostAuth(t, "/api/orders", map[string]any{
			"user_id": "u-order-4",
			"items":   []any{item("sandal", 40, 1)},
			"coupons": []any{map[string]any{"code": "ONCEONLY"}},
		})
	}

	first := placeOrder()
	defer first.Body.Close()
	if first.StatusCode != http.StatusCreated {
		t.Fatalf("first order: expected 201, got %d", first.StatusCode)
	}

	second := placeOrder()
	defer second.Body.Close()
	if second.StatusCode != http.StatusBadRequest {
		t.Fatalf("second order: expected 400, got %d", second.StatusCode)
	}
	rej := decodeJSON[errorResponse](t, second)
	if rej.Code != "coupon_usage_exceeded" {
		t.Fatalf("expected coupon_usage_exceeded, got %q", rej.Code)
	}
}

func TestPlaceOrder_EmptyItems(t *testing.T) {
	resp := doPostAuth(t, "/api/orders", map[string]any{
		"user_id": "u-order-5",
		"items":   []any{},
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestPlaceOrder_NoCoupons(t *testing.T) {
	resp := doPostAuth(t, "/api/orders", map[string]any{
		"user_id": "u-order-6",
		"items":   []any{item("sneaker", 60, 2)},
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	order := decodeJSON[orderResponse](t, resp)
	if order.Total != 120.0 || order.Discounts != 0.0 {
		t.Fatalf("expected total 120.00 with no discounts, got %+v", order)
	}
}

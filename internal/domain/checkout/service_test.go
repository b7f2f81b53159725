package checkout

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopfloor/coupon-engine/internal/domain/coupon"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func intp(v int) *int { return &v }

// --- Mocks ---

type mockCouponRepo struct {
	byCode      map[string]*coupon.Coupon
	byID        map[string]*coupon.Coupon
	decremented []string
}

func (m *mockCouponRepo) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	c, ok := m.byCode[code]
	if !ok {
		return nil, coupon.ErrCouponNotFound
	}
	return c, nil
}

func (m *mockCouponRepo) FindByID(_ context.Context, id string) (*coupon.Coupon, error) {
	c, ok := m.byID[id]
	if !ok {
		return nil, coupon.ErrNoSuchCoupon
	}
	return c, nil
}

func (m *mockCouponRepo) DecrementUsage(_ context.Context, id string) error {
	m.decremented = append(m.decremented, id)
	return nil
}

type mockGroupRepo struct{}

func (mockGroupRepo) FindByID(_ context.Context, id string) (*coupon.ProductGroup, error) {
	return nil, coupon.ErrNoSuchCoupon
}

type staticResolver string

func (s staticResolver) CountryCode(context.Context, string) (string, error) {
	return string(s), nil
}

func (s staticResolver) RoleCode(context.Context, string) (string, error) {
	return string(s), nil
}

type mockOrderRepo struct {
	last *Order
	err  error
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	m.last = o
	return m.err
}

func testItems() []coupon.LineItem {
	return []coupon.LineItem{
		{CatalogCode: "web", CatalogID: "cat-1", ProductID: "p-a", VariantID: "v-a", Price: d("50"), Quantity: 2},
		{CatalogCode: "web", CatalogID: "cat-1", ProductID: "p-b", VariantID: "v-b", Price: d("20"), Quantity: 5},
	}
}

func TestPlaceOrder_EndToEnd(t *testing.T) {
	// A: price 50 qty 2, B: price 20 qty 5. Coupon allows 4 units at 10%
	// percent off. A is fully discounted first, then 2 units of B:
	// round(50*2*0.10) + round(20*2*0.10) = 10.00 + 4.00 = 14.00.
	usage := intp(3)
	repo := &mockCouponRepo{
		byCode: map[string]*coupon.Coupon{
			"TENOFF": {
				ID: "c-1", Code: "TENOFF", Active: true, Type: coupon.TypeProduct,
				UsageCount: usage,
				Rules: &coupon.Rules{
					Operation:    coupon.OpPercentOff,
					Amount:       d("10"),
					UnitsAllowed: 4,
				},
			},
		},
	}
	repo.byID = map[string]*coupon.Coupon{"c-1": repo.byCode["TENOFF"]}

	orders := &mockOrderRepo{}
	engine := coupon.NewEngine(repo, mockGroupRepo{}, staticResolver("DE"), staticResolver("customer"), nil)
	svc := NewService(engine, orders)

	got, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:  "u-1",
		Items:   testItems(),
		Coupons: []CouponRequest{{Code: "TENOFF"}},
	})
	require.NoError(t, err)

	assert.True(t, got.Discounts.Equal(d("14.00")), "discounts %s", got.Discounts)
	assert.True(t, got.Total.Equal(d("186.00")), "total %s", got.Total)
	require.Len(t, got.Coupons, 1)
	assert.True(t, got.Coupons[0].Amount.Equal(d("14.00")))

	// Bookkeeping is carried into the persisted snapshot.
	require.NotNil(t, orders.last)
	assert.Equal(t, 2, orders.last.Items[0].DiscountQuantity)
	assert.Equal(t, 2, orders.last.Items[1].DiscountQuantity)

	// Usage burned exactly once, after persistence.
	assert.Equal(t, []string{"c-1"}, repo.decremented)
}

func TestPlaceOrder_InputValidation(t *testing.T) {
	engine := coupon.NewEngine(&mockCouponRepo{}, mockGroupRepo{}, staticResolver("DE"), staticResolver("customer"), nil)
	svc := NewService(engine, &mockOrderRepo{})

	t.Run("empty items", func(t *testing.T) {
		_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{UserID: "u-1"})
		require.ErrorIs(t, err, ErrEmptyItems)
	})

	t.Run("non-positive quantity", func(t *testing.T) {
		items := testItems()
		items[1].Quantity = 0
		_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{UserID: "u-1", Items: items})
		var iq *InvalidQuantityError
		require.ErrorAs(t, err, &iq)
		assert.Equal(t, "v-b", iq.VariantID)
	})

	t.Run("rejected coupon aborts placement", func(t *testing.T) {
		orders := &mockOrderRepo{}
		svc := NewService(engine, orders)
		_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
			UserID:  "u-1",
			Items:   testItems(),
			Coupons: []CouponRequest{{Code: "BOGUS"}},
		})
		require.ErrorIs(t, err, coupon.ErrCouponNotFound)
		assert.Nil(t, orders.last)
	})
}

func TestPlaceOrder_NoCoupons(t *testing.T) {
	engine := coupon.NewEngine(&mockCouponRepo{}, mockGroupRepo{}, staticResolver("DE"), staticResolver("customer"), nil)
	orders := &mockOrderRepo{}
	svc := NewService(engine, orders)

	got, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID: "u-1",
		Items:  testItems(),
	})
	require.NoError(t, err)
	assert.True(t, got.Total.Equal(d("200.00")), "total %s", got.Total)
	assert.True(t, got.Discounts.IsZero())
	assert.Empty(t, got.Coupons)
}

func TestPlaceOrder_OrderCouponPlusProductCoupon(t *testing.T) {
	// A product coupon marked as buying bonus shrinks the base of a
	// subsequent order-level percentage coupon.
	bonusUsage := intp(10)
	repo := &mockCouponRepo{
		byCode: map[string]*coupon.Coupon{
			"BONUS2": {
				ID: "c-b", Code: "BONUS2", Active: true, Type: coupon.TypeProduct,
				UsageCount: bonusUsage,
				Rules: &coupon.Rules{
					Operation:    coupon.OpPercentOff,
					Amount:       d("100"),
					UnitsAllowed: 2,
				},
			},
			"ORDER10": {
				ID: "c-o", Code: "ORDER10", Active: true, Type: coupon.TypeOrder,
				Rules: &coupon.Rules{
					Operation: coupon.OpPercentOff,
					Amount:    d("10"),
				},
			},
		},
	}
	repo.byID = map[string]*coupon.Coupon{
		"c-b": repo.byCode["BONUS2"],
		"c-o": repo.byCode["ORDER10"],
	}

	engine := coupon.NewEngine(repo, mockGroupRepo{}, staticResolver("DE"), staticResolver("customer"),
		func(code string) bool { return code == "BONUS2" })
	orders := &mockOrderRepo{}
	svc := NewService(engine, orders)

	got, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID: "u-1",
		Items:  testItems(),
		Coupons: []CouponRequest{
			{Code: "BONUS2"},
			{Code: "ORDER10"},
		},
	})
	require.NoError(t, err)

	// BONUS2 takes the two 50-priced units for free: 100.00.
	// ORDER10 then sees a base of 200 - 100 = 100: 10.00.
	assert.True(t, got.Discounts.Equal(d("110.00")), "discounts %s", got.Discounts)
	assert.True(t, got.Total.Equal(d("90.00")), "total %s", got.Total)

	// Only the usage-limited coupon is decremented; the unlimited
	// order coupon is a tracker no-op.
	assert.Equal(t, []string{"c-b"}, repo.decremented)
}

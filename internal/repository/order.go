package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/shopfloor/coupon-engine/internal/domain/checkout"
)

const createOrderSQL = `INSERT INTO orders (id, user_id, address, items, total, discounts, coupons)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

var _ checkout.Repository = (*OrderRepository)(nil)

// OrderRepository implements checkout.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// orderItemRow is the JSONB shape of one persisted line item.
type orderItemRow struct {
	CatalogCode      string          `json:"catalog_code"`
	CatalogID        string          `json:"catalog_id"`
	ProductID        string          `json:"product_id"`
	VariantID        string          `json:"variant_id"`
	Price            decimal.Decimal `json:"price"`
	Quantity         int             `json:"quantity"`
	DiscountQuantity int             `json:"discount_quantity"`
}

// addressRow is the JSONB shape of the shipping address.
type addressRow struct {
	CountryID string `json:"country_id"`
	City      string `json:"city,omitempty"`
	Street    string `json:"street,omitempty"`
	Zip       string `json:"zip,omitempty"`
}

// usedCouponRow is the JSONB shape of one applied coupon.
type usedCouponRow struct {
	CouponID string          `json:"coupon_id"`
	Code     string          `json:"code"`
	Amount   decimal.Decimal `json:"amount"`
}

// Create persists a placed order. Line items and applied coupons are
// serialized to JSONB columns.
func (r *OrderRepository) Create(ctx context.Context, o *checkout.Order) error {
	items := make([]orderItemRow, len(o.Items))
	for i, it := range o.Items {
		items[i] = orderItemRow{
			CatalogCode:      it.CatalogCode,
			CatalogID:        it.CatalogID,
			ProductID:        it.ProductID,
			VariantID:        it.VariantID,
			Price:            it.Price,
			Quantity:         it.Quantity,
			DiscountQuantity: it.DiscountQuantity,
		}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}

	used := make([]usedCouponRow, len(o.Coupons))
	for i, u := range o.Coupons {
		used[i] = usedCouponRow{CouponID: u.CouponID, Code: u.Code, Amount: u.Amount}
	}
	couponsJSON, err := json.Marshal(used)
	if err != nil {
		return fmt.Errorf("marshaling order coupons: %w", err)
	}

	var addressJSON []byte
	if o.Address != nil {
		if addressJSON, err = json.Marshal(addressRow{
			CountryID: o.Address.CountryID,
			City:      o.Address.City,
			Street:    o.Address.Street,
			Zip:       o.Address.Zip,
		}); err != nil {
			return fmt.Errorf("marshaling order address: %w", err)
		}
	}

	_, err = r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.UserID, addressJSON, itemsJSON, o.Total, o.Discounts, couponsJSON,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

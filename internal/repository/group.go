package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopfloor/coupon-engine/internal/domain/coupon"
)

const (
	getGroupSQL = `SELECT id, name FROM product_groups WHERE id = $1`

	getGroupItemsSQL = `SELECT catalog_id, product_id FROM product_group_items
		WHERE group_id = $1 ORDER BY catalog_id, product_id`

	createGroupSQL = `INSERT INTO product_groups (name) VALUES ($1) RETURNING id`

	createGroupItemSQL = `INSERT INTO product_group_items (group_id, catalog_id, product_id)
		VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`
)

var _ coupon.GroupRepository = (*GroupRepository)(nil)

// GroupRepository implements coupon.GroupRepository backed by PostgreSQL.
type GroupRepository struct {
	pool *pgxpool.Pool
}

// NewGroupRepository returns a GroupRepository that uses the given pool.
func NewGroupRepository(pool *pgxpool.Pool) *GroupRepository {
	return &GroupRepository{pool: pool}
}

// FindByID loads a product group with all its covered catalog/product pairs.
func (r *GroupRepository) FindByID(ctx context.Context, id string) (*coupon.ProductGroup, error) {
	g := &coupon.ProductGroup{}
	err := r.pool.QueryRow(ctx, getGroupSQL, id).Scan(&g.ID, &g.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("product group %q not found", id)
		}
		return nil, fmt.Errorf("finding product group %q: %w", id, err)
	}

	rows, err := r.pool.Query(ctx, getGroupItemsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("loading product group %q items: %w", id, err)
	}

	g.Products, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (coupon.GroupProduct, error) {
		var p coupon.GroupProduct
		err := row.Scan(&p.CatalogID, &p.ProductID)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("loading product group %q items: %w", id, err)
	}

	return g, nil
}

// Create persists a product group with its items and fills in the
// generated id.
func (r *GroupRepository) Create(ctx context.Context, g *coupon.ProductGroup) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("creating product group %q: %w", g.Name, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.QueryRow(ctx, createGroupSQL, g.Name).Scan(&g.ID); err != nil {
		return fmt.Errorf("creating product group %q: %w", g.Name, err)
	}
	for _, p := range g.Products {
		if _, err := tx.Exec(ctx, createGroupItemSQL, g.ID, p.CatalogID, p.ProductID); err != nil {
			return fmt.Errorf("adding product %s/%s to group %q: %w", p.CatalogID, p.ProductID, g.Name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("creating product group %q: %w", g.Name, err)
	}
	return nil
}

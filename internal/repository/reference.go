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
	getCountryCodeSQL = `SELECT iso_code FROM countries WHERE id = $1`

	getRoleCodeSQL = `SELECT role_code FROM catalog_roles WHERE catalog_code = $1`
)

var (
	_ coupon.CountryResolver = (*CountryRepository)(nil)
	_ coupon.RoleResolver    = (*RoleRepository)(nil)
)

// CountryRepository resolves country references to ISO codes.
type CountryRepository struct {
	pool *pgxpool.Pool
}

// NewCountryRepository returns a CountryRepository that uses the given pool.
func NewCountryRepository(pool *pgxpool.Pool) *CountryRepository {
	return &CountryRepository{pool: pool}
}

// CountryCode returns the ISO code of the referenced country. An unknown
// reference resolves to an empty code, which no country rule matches.
func (r *CountryRepository) CountryCode(ctx context.Context, countryID string) (string, error) {
	var iso string
	err := r.pool.QueryRow(ctx, getCountryCodeSQL, countryID).Scan(&iso)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("resolving country %q: %w", countryID, err)
	}
	return iso, nil
}

// RoleRepository resolves catalog codes to role codes.
type RoleRepository struct {
	pool *pgxpool.Pool
}

// NewRoleRepository returns a RoleRepository that uses the given pool.
func NewRoleRepository(pool *pgxpool.Pool) *RoleRepository {
	return &RoleRepository{pool: pool}
}

// RoleCode returns the role code associated with the catalog. An unknown
// catalog resolves to an empty code, which no role rule matches.
func (r *RoleRepository) RoleCode(ctx context.Context, catalogCode string) (string, error) {
	var role string
	err := r.pool.QueryRow(ctx, getRoleCodeSQL, catalogCode).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("resolving role for catalog %q: %w", catalogCode, err)
	}
	return role, nil
}

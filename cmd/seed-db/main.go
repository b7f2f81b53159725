// Command seed-db fills the database with the reference data the coupon
// engine needs to operate: countries, catalog roles, product groups, and a
// set of sample coupons.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/shopfloor/coupon-engine/internal/domain/coupon"
	"github.com/shopfloor/coupon-engine/internal/repository"
)

type seedFile struct {
	Countries []countryJSON `json:"countries"`
	Catalogs  []catalogJSON `json:"catalogs"`
	Groups    []groupJSON   `json:"groups"`
	Coupons   []couponJSON  `json:"coupons"`
}

type countryJSON struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	ISOCode string `json:"iso_code"`
}

type catalogJSON struct {
	CatalogCode string `json:"catalog_code"`
	RoleCode    string `json:"role_code"`
}

type groupJSON struct {
	Name     string `json:"name"`
	Products []struct {
		CatalogID string `json:"catalog_id"`
		ProductID string `json:"product_id"`
	} `json:"products"`
}

type couponJSON struct {
	Code         string          `json:"code"`
	Type         string          `json:"type"`
	Operation    string          `json:"operation"`
	Amount       decimal.Decimal `json:"amount"`
	UnitsAllowed int             `json:"units_allowed"`
	UsageCount   *int            `json:"usage_count"`
	ExpiresAt    *time.Time      `json:"expires_at"`
	SingleUser   bool            `json:"single_user"`
	OwnerID      string          `json:"owner_id"`
	MinTotal     *decimal.Decimal `json:"min_total"`
	MaxTotal     *decimal.Decimal `json:"max_total"`
	Countries    []string        `json:"countries"`
	Roles        []string        `json:"roles"`
	Group        string          `json:"group"`
}

func main() {
	var (
		databaseURL  string
		seedPath     string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedPath, "seed-file", "db/seed/seed.json", "path to seed JSON file")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed for the write endpoints (or COUPON_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or COUPON_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if apiKey == "" {
		apiKey = os.Getenv("COUPON_SEED_API_KEY")
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("COUPON_API_KEY_PEPPER")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, seedPath, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, seedPath, apiKey, apiKeyPepper string) error {
	data, err := os.ReadFile(seedPath)
	if err != nil {
		return errors.Wrap(err, "read seed file")
	}
	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return errors.Wrap(err, "parse seed JSON")
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedReferenceData(ctx, pool, seed); err != nil {
		return errors.Wrap(err, "seed reference data")
	}

	groupIDs, err := seedGroups(ctx, pool, seed.Groups)
	if err != nil {
		return errors.Wrap(err, "seed product groups")
	}

	if err := seedCoupons(ctx, pool, seed.Coupons, groupIDs); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	if apiKey == "" {
		slog.Warn("no API key given, skipping API key seeding; the write endpoints will reject all requests")
		return nil
	}
	if err := seedAPIKey(ctx, pool, apiKey, apiKeyPepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

// seedAPIKey stores the HMAC hash of the given key so the write endpoints
// accept it.
func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(apiKey))
	keyHash := hex.EncodeToString(mac.Sum(nil))

	const upsertAPIKey = `INSERT INTO api_keys (id, key_hash, name, scopes, active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (id) DO UPDATE SET key_hash = EXCLUDED.key_hash, name = EXCLUDED.name,
			scopes = EXCLUDED.scopes, active = TRUE`
	_, err := pool.Exec(ctx, upsertAPIKey, "default", keyHash, "Default seeded key", []string{"coupons:write", "orders:write"})
	if err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key", slog.String("id", "default"))

	return nil
}

func seedReferenceData(ctx context.Context, pool *pgxpool.Pool, seed seedFile) error {
	slog.Info("seeding countries", slog.Int("count", len(seed.Countries)))

	const upsertCountry = `INSERT INTO countries (id, name, iso_code) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, iso_code = EXCLUDED.iso_code`
	for _, c := range seed.Countries {
		if _, err := pool.Exec(ctx, upsertCountry, c.ID, c.Name, c.ISOCode); err != nil {
			return errors.Wrapf(err, "upsert country %s", c.ID)
		}
	}

	slog.Info("seeding catalog roles", slog.Int("count", len(seed.Catalogs)))

	const upsertRole = `INSERT INTO catalog_roles (catalog_code, role_code) VALUES ($1, $2)
		ON CONFLICT (catalog_code) DO UPDATE SET role_code = EXCLUDED.role_code`
	for _, c := range seed.Catalogs {
		if _, err := pool.Exec(ctx, upsertRole, c.CatalogCode, c.RoleCode); err != nil {
			return errors.Wrapf(err, "upsert catalog role %s", c.CatalogCode)
		}
	}

	return nil
}

// seedGroups creates the product groups that do not exist yet and returns a
// name to id mapping for coupon scoping.
func seedGroups(ctx context.Context, pool *pgxpool.Pool, groups []groupJSON) (map[string]string, error) {
	repo := repository.NewGroupRepository(pool)
	ids := make(map[string]string, len(groups))

	for _, g := range groups {
		var existing string
		err := pool.QueryRow(ctx, `SELECT id FROM product_groups WHERE name = $1`, g.Name).Scan(&existing)
		if err == nil {
			ids[g.Name] = existing
			continue
		}

		pg := &coupon.ProductGroup{Name: g.Name}
		for _, p := range g.Products {
			pg.Products = append(pg.Products, coupon.GroupProduct{
				CatalogID: p.CatalogID,
				ProductID: p.ProductID,
			})
		}
		if err := repo.Create(ctx, pg); err != nil {
			return nil, errors.Wrapf(err, "create group %s", g.Name)
		}
		ids[g.Name] = pg.ID

		slog.Info("created product group", slog.String("name", g.Name), slog.String("id", pg.ID))
	}

	return ids, nil
}

func seedCoupons(ctx context.Context, pool *pgxpool.Pool, coupons []couponJSON, groupIDs map[string]string) error {
	repo := repository.NewCouponRepository(pool)

	for _, cj := range coupons {
		if _, err := repo.FindByCode(ctx, cj.Code); err == nil {
			slog.Info("coupon exists, skipping", slog.String("code", cj.Code))
			continue
		}

		var scope coupon.Scope = coupon.AllProducts{}
		if cj.Group != "" {
			id, ok := groupIDs[cj.Group]
			if !ok {
				return errors.Errorf("coupon %s references unknown group %q", cj.Code, cj.Group)
			}
			scope = coupon.GroupScope{GroupID: id}
		}

		c := &coupon.Coupon{
			Code:       cj.Code,
			Active:     true,
			Type:       coupon.Type(cj.Type),
			ExpiresAt:  cj.ExpiresAt,
			SingleUser: cj.SingleUser,
			OwnerID:    cj.OwnerID,
			UsageCount: cj.UsageCount,
			Rules: &coupon.Rules{
				Operation:    coupon.Operation(cj.Operation),
				Amount:       cj.Amount,
				UnitsAllowed: cj.UnitsAllowed,
				MinTotal:     cj.MinTotal,
				MaxTotal:     cj.MaxTotal,
				Countries:    cj.Countries,
				Roles:        cj.Roles,
				Scope:        scope,
			},
		}
		if err := repo.Create(ctx, c); err != nil {
			return errors.Wrapf(err, "create coupon %s", cj.Code)
		}

		slog.Info("created coupon", slog.String("code", cj.Code), slog.String("id", c.ID))
	}

	return nil
}

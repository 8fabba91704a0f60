// Command seed-db provisions a fresh database with migrations, the product
// variant catalog, shipping methods, and a couple of starter promotions.
// Inserts are idempotent, so re-running against a seeded database is safe.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ordwell/ordercore/internal/domain/order"
	"github.com/ordwell/ordercore/internal/domain/promotion"
	"github.com/ordwell/ordercore/internal/domain/shipping"
	"github.com/ordwell/ordercore/internal/storage/postgres"
)

type variantJSON struct {
	SKU            string          `json:"sku"`
	Name           string          `json:"name"`
	Price          decimal.Decimal `json:"price"`
	TrackInventory bool            `json:"trackInventory"`
	StockOnHand    int             `json:"stockOnHand"`
}

func main() {
	var (
		databaseURL  string
		variantsFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&variantsFile, "variants-file", "db/seed/variants.json", "path to variants JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, variantsFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, variantsFile string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedCustomers(ctx, postgres.NewCustomerRepository(pool)); err != nil {
		return errors.Wrap(err, "seed customers")
	}

	if err := seedVariants(ctx, postgres.NewVariantRepository(pool), variantsFile); err != nil {
		return errors.Wrap(err, "seed variants")
	}

	if err := seedShippingMethods(ctx, postgres.NewShippingMethodRepository(pool)); err != nil {
		return errors.Wrap(err, "seed shipping methods")
	}

	if err := seedPromotions(ctx, postgres.NewPromotionRepository(pool)); err != nil {
		return errors.Wrap(err, "seed promotions")
	}

	return nil
}

func seedCustomers(ctx context.Context, repo *postgres.CustomerRepository) error {
	slog.Info("seeding demo customer")

	c := &postgres.Customer{
		ID:        uuid.New(),
		Email:     "demo@example.com",
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.Create(ctx, c); err != nil {
		return errors.Wrap(err, "insert demo customer")
	}

	slog.Info("inserted customer", slog.String("email", c.Email))
	return nil
}

func seedVariants(ctx context.Context, repo *postgres.VariantRepository, variantsFile string) error {
	slog.Info("reading variants file", slog.String("path", variantsFile))

	data, err := os.ReadFile(variantsFile)
	if err != nil {
		return errors.Wrap(err, "read variants file")
	}

	var variants []variantJSON
	if err := json.Unmarshal(data, &variants); err != nil {
		return errors.Wrap(err, "parse variants JSON")
	}

	slog.Info("inserting variants", slog.Int("count", len(variants)))

	for _, v := range variants {
		if err := repo.Create(ctx, &order.Variant{
			ID:             uuid.New(),
			SKU:            v.SKU,
			Name:           v.Name,
			Price:          v.Price,
			TrackInventory: v.TrackInventory,
		}, v.StockOnHand); err != nil {
			return errors.Wrapf(err, "insert variant %s", v.SKU)
		}

		slog.Info("inserted variant", slog.String("sku", v.SKU), slog.String("name", v.Name))
	}

	return nil
}

func seedShippingMethods(ctx context.Context, repo *postgres.ShippingMethodRepository) error {
	slog.Info("seeding shipping methods")

	methods := []*shipping.Method{
		{
			ID:      uuid.New(),
			Code:    "standard",
			Name:    "Standard shipping",
			Enabled: true,
			Checker: shipping.CheckerConfig{Code: "always"},
			Calculator: shipping.CalculatorConfig{
				Code: "free_over_threshold",
				Args: shipping.Args{"rate": "4.95", "threshold": "50"},
			},
		},
		{
			ID:      uuid.New(),
			Code:    "express",
			Name:    "Express shipping",
			Enabled: true,
			Checker: shipping.CheckerConfig{
				Code: "min_order_total",
				Args: shipping.Args{"total": "10"},
			},
			Calculator: shipping.CalculatorConfig{
				Code: "flat_rate",
				Args: shipping.Args{"rate": "12.50"},
			},
		},
	}

	for _, m := range methods {
		if err := repo.Create(ctx, m); err != nil {
			return errors.Wrapf(err, "insert shipping method %s", m.Code)
		}

		slog.Info("inserted shipping method", slog.String("code", m.Code), slog.String("name", m.Name))
	}

	return nil
}

func seedPromotions(ctx context.Context, repo *postgres.PromotionRepository) error {
	slog.Info("seeding starter promotions")

	existing, err := repo.Active(ctx)
	if err != nil {
		return errors.Wrap(err, "list existing promotions")
	}
	seen := make(map[string]bool, len(existing))
	for _, p := range existing {
		seen[p.Name] = true
	}

	reg := promotion.DefaultRegistry()
	now := time.Now().UTC()

	promos := []*promotion.Promotion{
		{
			ID:         uuid.New(),
			Name:       "Happy Hours: 18% off entire order",
			Enabled:    true,
			CouponCode: "HAPPYHOURS",
			Actions: []promotion.ActionConfig{
				{Code: "order_percentage_discount", Args: promotion.Args{"discount": "18"}},
			},
			CreatedAt: now,
		},
		{
			ID:         uuid.New(),
			Name:       "Buy one get one: cheapest item free",
			Enabled:    true,
			CouponCode: "BUYGETONE",
			Conditions: []promotion.ConditionConfig{
				{Code: "minimum_quantity", Args: promotion.Args{"quantity": "2"}},
			},
			Actions: []promotion.ActionConfig{
				{Code: "free_cheapest_item"},
			},
			CreatedAt: now,
		},
		{
			ID:      uuid.New(),
			Name:    "10% off orders over $100",
			Enabled: true,
			Conditions: []promotion.ConditionConfig{
				{Code: "minimum_order_amount", Args: promotion.Args{"amount": "100"}},
			},
			Actions: []promotion.ActionConfig{
				{Code: "order_percentage_discount", Args: promotion.Args{"discount": "10"}},
			},
			CreatedAt: now,
		},
	}

	for _, p := range promos {
		if seen[p.Name] {
			slog.Info("promotion already present", slog.String("name", p.Name))
			continue
		}
		p.PriorityScore = p.ComputePriorityScore(reg)
		if err := repo.Create(ctx, p); err != nil {
			return errors.Wrapf(err, "insert promotion %q", p.Name)
		}

		slog.Info("inserted promotion", slog.String("name", p.Name))
	}

	return nil
}

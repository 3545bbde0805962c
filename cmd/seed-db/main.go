package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/pizza-kart/internal/domain/coupon"
	"github.com/xenking/pizza-kart/internal/domain/order"
	"github.com/xenking/pizza-kart/internal/domain/pricing"
	"github.com/xenking/pizza-kart/internal/domain/variation"
	"github.com/xenking/pizza-kart/internal/storage/postgres"
)

func main() {
	var (
		databaseURL    string
		variationsFile string
		demoOrder      bool
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&variationsFile, "variations-file", "db/seed/variations.json", "path to variations JSON file")
	flag.BoolVar(&demoOrder, "demo-order", false, "also create a demo half-and-half order")
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

	if err := run(ctx, databaseURL, variationsFile, demoOrder); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, variationsFile string, demoOrder bool) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.Migrate(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	variations := postgres.NewVariationRepository(pool)
	if err := seedVariations(ctx, variations, variationsFile); err != nil {
		return errors.Wrap(err, "seed variations")
	}

	if err := seedCoupons(ctx, postgres.NewCouponRepository(pool)); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	if demoOrder {
		if err := seedOrder(ctx, postgres.NewOrderRepository(pool), variations); err != nil {
			return errors.Wrap(err, "seed demo order")
		}
	}

	return nil
}

func seedVariations(ctx context.Context, repo *postgres.VariationRepository, path string) error {
	slog.Info("reading variations file", slog.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read variations file")
	}

	var vs []variation.Variation
	if err := json.Unmarshal(data, &vs); err != nil {
		return errors.Wrap(err, "parse variations JSON")
	}

	slog.Info("upserting variations", slog.Int("count", len(vs)))

	for _, v := range vs {
		if err := repo.Upsert(ctx, v); err != nil {
			return errors.Wrapf(err, "upsert variation %s", v.ID)
		}
		slog.Info("upserted variation", slog.String("id", v.ID), slog.String("price", v.AdditionalPrice.StringFixed(2)))
	}

	return nil
}

func seedCoupons(ctx context.Context, repo coupon.Repository) error {
	slog.Info("seeding storefront coupons")

	minimum := decimal.NewFromInt(80)
	coupons := []coupon.Coupon{
		{
			Name:   "PIZZA10",
			Type:   coupon.DiscountPercentage,
			Value:  decimal.NewFromInt(10),
			Active: true,
		},
		{
			Name:          "FRETEGRATIS",
			Type:          coupon.DiscountFixed,
			Value:         decimal.NewFromInt(8),
			Active:        true,
			MinOrderValue: &minimum,
		},
		{
			Name:       "BLACKFRIDAY",
			Type:       coupon.DiscountPercentage,
			Value:      decimal.NewFromInt(30),
			Active:     false,
			UsageLimit: 500,
		},
	}

	for _, c := range coupons {
		c.ID = coupon.NewID(c.Name)
		if err := repo.Upsert(ctx, c); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.Name)
		}
		slog.Info("upserted coupon", slog.String("code", c.Name), slog.Bool("active", c.Active))
	}

	return nil
}

// seedOrder places an order through the service so that its totals are
// computed exactly as for a storefront order.
func seedOrder(ctx context.Context, orders order.Repository, variations variation.Repository) error {
	svc, err := order.NewService(orders, variations, nil, order.ServiceConfig{})
	if err != nil {
		return err
	}

	half := decimal.NewFromInt(62)
	frete := decimal.NewFromInt(7)
	o, err := svc.Create(ctx, order.CreateRequest{
		CustomerName:  "Cliente Demo",
		CustomerPhone: "5511900000000",
		Items: []pricing.Item{
			{
				MenuItemID: "pizza-grande",
				Name:       "Calabresa / Quatro Queijos",
				Quantity:   1,
				Half:       &pricing.Combination{First: "Calabresa", Second: "Quatro Queijos", Price: &half},
				Groups: []pricing.Group{{
					ID:   "extras",
					Name: "Adicionais",
					Choices: []pricing.Choice{
						{VariationID: "bacon", Name: "Bacon", HalfSelection: pricing.Whole},
						{VariationID: "azeitona", Name: "Azeitona", HalfSelection: pricing.HalfFirst},
					},
				}},
				Border: &pricing.Border{Name: "Catupiry", Price: decimal.NewFromInt(10)},
			},
		},
		Frete: &frete,
	})
	if err != nil {
		return err
	}

	slog.Info("created demo order", slog.String("id", o.ID), slog.String("total", o.Total.StringFixed(2)))
	return nil
}

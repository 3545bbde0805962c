// Package variation holds the catalog of selectable toppings and add-ons.
package variation

import (
	"context"

	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/pizza-kart/internal/domain/pricing"
)

// Variation is a catalog entry with its additional price.
type Variation struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	AdditionalPrice decimal.Decimal `json:"additionalPrice"`
}

// Repository lists the variation catalog.
type Repository interface {
	List(ctx context.Context) ([]Variation, error)
}

var _ pricing.PriceLookup = Catalog(nil)

// Catalog indexes variations by id and serves as a pricing.PriceLookup.
type Catalog map[string]Variation

// NewCatalog builds a Catalog from a list. Later duplicates win.
func NewCatalog(vs []Variation) Catalog {
	c := make(Catalog, len(vs))
	for _, v := range vs {
		c[v.ID] = v
	}
	return c
}

// VariationPrice implements pricing.PriceLookup.
func (c Catalog) VariationPrice(id string) (decimal.Decimal, bool) {
	v, ok := c[id]
	if !ok {
		return decimal.Zero, false
	}
	return v.AdditionalPrice, true
}

// Load fetches the catalog once. A failing repository yields an empty
// catalog so that pricing keeps working with unknown prices set to zero.
func Load(ctx context.Context, repo Repository) Catalog {
	if repo == nil {
		return Catalog{}
	}
	vs, err := repo.List(ctx)
	if err != nil {
		zctx.From(ctx).Warn("Variation catalog unavailable, pricing unknown variations as zero",
			zap.Error(err),
		)
		return Catalog{}
	}
	return NewCatalog(vs)
}

// Package pricing computes line totals for composite menu items: fixed-price
// and "starting from" items, half-and-half pizzas, selectable variations and
// stuffed-crust borders.
//
// Every function here is pure. Per-unit extras are computed first and the
// full unit price is multiplied by the line quantity exactly once, so the
// cart display and the server-side order recomputation always agree.
package pricing

import "github.com/shopspring/decimal"

// HalfSelection tells which part of a half-and-half pizza a variation covers.
type HalfSelection string

const (
	// HalfFirst applies the variation to the first half only.
	HalfFirst HalfSelection = "half1"
	// HalfSecond applies the variation to the second half only.
	HalfSecond HalfSelection = "half2"
	// Whole applies the variation to both halves and is charged twice.
	Whole HalfSelection = "whole"
)

// Combination describes the two flavors of a half-and-half pizza and the
// combined flat price, when one was quoted.
type Combination struct {
	First  string
	Second string
	Price  *decimal.Decimal
}

// Choice is a single selected variation inside a group.
type Choice struct {
	VariationID string
	Name        string
	// Price is the explicit additional price carried by the choice. When nil
	// the price is resolved from the variation catalog.
	Price    *decimal.Decimal
	Quantity int
	// HalfSelection is only meaningful on half-and-half items.
	HalfSelection HalfSelection
}

// Group is a named option group with its ordered choices.
type Group struct {
	ID      string
	Name    string
	Choices []Choice
}

// Border is a stuffed-crust add-on priced once per unit.
type Border struct {
	Name  string
	Price decimal.Decimal
}

// Item is a cart line item.
type Item struct {
	MenuItemID string
	Name       string
	Quantity   int
	// Price is the fixed unit price. It is ignored for "starting from" items
	// that are not half-and-half.
	Price     decimal.Decimal
	PriceFrom bool
	// Half is set only for half-and-half pizzas; its presence is what makes
	// the item a half pizza.
	Half   *Combination
	Groups []Group
	Border *Border
}

// IsHalfPizza reports whether the item is a half-and-half pizza.
func (i Item) IsHalfPizza() bool {
	return i.Half != nil
}

// Units returns the line quantity, defaulting to 1.
func (i Item) Units() int {
	if i.Quantity <= 0 {
		return 1
	}
	return i.Quantity
}

// Units returns the choice quantity, defaulting to 1.
func (c Choice) Units() int {
	if c.Quantity <= 0 {
		return 1
	}
	return c.Quantity
}

// PriceLookup resolves a variation's additional price by id.
type PriceLookup interface {
	VariationPrice(id string) (decimal.Decimal, bool)
}

// LookupFunc adapts a plain function to PriceLookup.
type LookupFunc func(id string) (decimal.Decimal, bool)

// VariationPrice implements PriceLookup.
func (f LookupFunc) VariationPrice(id string) (decimal.Decimal, bool) {
	return f(id)
}

// NoLookup resolves every variation id to an unknown (zero) price.
var NoLookup PriceLookup = LookupFunc(func(string) (decimal.Decimal, bool) {
	return decimal.Zero, false
})

// BaseUnitPrice returns the unit price of the item before extras.
func BaseUnitPrice(item Item) decimal.Decimal {
	if item.IsHalfPizza() {
		if item.Half.Price != nil {
			return *item.Half.Price
		}
		return item.Price
	}
	if item.PriceFrom {
		return decimal.Zero
	}
	return item.Price
}

// ChoiceUnitPrice returns the additional price of one unit of the choice.
// Unknown variation ids resolve to zero.
func ChoiceUnitPrice(c Choice, lookup PriceLookup) decimal.Decimal {
	if c.Price != nil {
		return *c.Price
	}
	if c.VariationID == "" || lookup == nil {
		return decimal.Zero
	}
	if p, ok := lookup.VariationPrice(c.VariationID); ok {
		return p
	}
	return decimal.Zero
}

// Multiplier is 2 for whole-pizza choices on half-and-half items, 1 otherwise.
func Multiplier(item Item, c Choice) int64 {
	if item.IsHalfPizza() && c.HalfSelection == Whole {
		return 2
	}
	return 1
}

// ChoiceTotal returns the per-unit contribution of a choice to its item.
func ChoiceTotal(item Item, c Choice, lookup PriceLookup) decimal.Decimal {
	n := int64(c.Units()) * Multiplier(item, c)
	return ChoiceUnitPrice(c, lookup).Mul(decimal.NewFromInt(n))
}

// BorderPrice returns the border add-on, or zero when none is selected or its
// price is not positive.
func BorderPrice(item Item) decimal.Decimal {
	if item.Border == nil || !item.Border.Price.IsPositive() {
		return decimal.Zero
	}
	return item.Border.Price
}

// UnitExtras returns variation extras plus the border for a single unit.
func UnitExtras(item Item, lookup PriceLookup) decimal.Decimal {
	sum := decimal.Zero
	for _, g := range item.Groups {
		for _, c := range g.Choices {
			sum = sum.Add(ChoiceTotal(item, c, lookup))
		}
	}
	return sum.Add(BorderPrice(item))
}

// UnitTotal returns base price plus extras for a single unit.
func UnitTotal(item Item, lookup PriceLookup) decimal.Decimal {
	return BaseUnitPrice(item).Add(UnitExtras(item, lookup))
}

// LineExtrasTotal returns the extras (variations and border) of the whole line.
func LineExtrasTotal(item Item, lookup PriceLookup) decimal.Decimal {
	return UnitExtras(item, lookup).Mul(decimal.NewFromInt(int64(item.Units())))
}

// LineTotal returns (base + extras) × quantity.
func LineTotal(item Item, lookup PriceLookup) decimal.Decimal {
	return UnitTotal(item, lookup).Mul(decimal.NewFromInt(int64(item.Units())))
}

// Resolve returns a copy of item where every choice carries an explicit price,
// taken from the lookup when it had none. Pricing the resolved item gives the
// same result with any lookup.
func Resolve(item Item, lookup PriceLookup) Item {
	out := item
	out.Groups = make([]Group, len(item.Groups))
	for i, g := range item.Groups {
		rg := Group{ID: g.ID, Name: g.Name, Choices: make([]Choice, len(g.Choices))}
		for j, c := range g.Choices {
			p := ChoiceUnitPrice(c, lookup)
			c.Price = &p
			c.Quantity = c.Units()
			rg.Choices[j] = c
		}
		out.Groups[i] = rg
	}
	return out
}

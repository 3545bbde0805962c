package handler

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/pizza-kart/internal/domain/pricing"
)

// ItemRequest is a cart line item as sent by the storefront. Older clients
// send the menu item id as id.
type ItemRequest struct {
	MenuItemID         string             `json:"menuItemId"`
	ID                 string             `json:"id"`
	Name               string             `json:"name"`
	Price              decimal.Decimal    `json:"price"`
	Quantity           int                `json:"quantity"`
	PriceFrom          bool               `json:"priceFrom"`
	IsHalfPizza        bool               `json:"isHalfPizza"`
	Combination        *CombinationInput  `json:"combination"`
	SelectedVariations []VariationGroupIn `json:"selectedVariations"`
	SelectedBorder     *BorderInput       `json:"selectedBorder"`
}

// CombinationInput is the half-and-half flavor pair.
type CombinationInput struct {
	First  string           `json:"first"`
	Second string           `json:"second"`
	Price  *decimal.Decimal `json:"price"`
}

// VariationGroupIn is a selected option group.
type VariationGroupIn struct {
	GroupID    string        `json:"groupId"`
	GroupName  string        `json:"groupName"`
	Variations []VariationIn `json:"variations"`
}

// VariationIn is a selected variation. AdditionalPrice may be omitted, in
// which case the catalog price applies. VariationID falls back to ID.
type VariationIn struct {
	VariationID     string           `json:"variationId"`
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	AdditionalPrice *decimal.Decimal `json:"additionalPrice"`
	Quantity        int              `json:"quantity"`
	HalfSelection   string           `json:"halfSelection"`
}

// BorderInput is the stuffed-crust selection.
type BorderInput struct {
	Name            string          `json:"name"`
	AdditionalPrice decimal.Decimal `json:"additionalPrice"`
}

// toPricing converts the loosely shaped request into the pricing model.
// A combination is only kept on half pizzas.
func (in ItemRequest) toPricing() pricing.Item {
	item := pricing.Item{
		MenuItemID: firstNonEmpty(in.MenuItemID, in.ID),
		Name:       in.Name,
		Quantity:   in.Quantity,
		Price:      in.Price,
		PriceFrom:  in.PriceFrom,
	}
	if in.IsHalfPizza {
		item.Half = &pricing.Combination{}
		if c := in.Combination; c != nil {
			item.Half = &pricing.Combination{First: c.First, Second: c.Second, Price: c.Price}
		}
	}
	for _, g := range in.SelectedVariations {
		group := pricing.Group{ID: g.GroupID, Name: g.GroupName}
		for _, v := range g.Variations {
			group.Choices = append(group.Choices, pricing.Choice{
				VariationID:   firstNonEmpty(v.VariationID, v.ID),
				Name:          v.Name,
				Price:         v.AdditionalPrice,
				Quantity:      v.Quantity,
				HalfSelection: pricing.HalfSelection(v.HalfSelection),
			})
		}
		item.Groups = append(item.Groups, group)
	}
	if b := in.SelectedBorder; b != nil {
		item.Border = &pricing.Border{Name: b.Name, Price: b.AdditionalPrice}
	}
	return item
}

func toPricingItems(in []ItemRequest) []pricing.Item {
	items := make([]pricing.Item, len(in))
	for i, it := range in {
		items[i] = it.toPricing()
	}
	return items
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

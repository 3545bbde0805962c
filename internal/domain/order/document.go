package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// Document is a schemaless order representation as written to the store.
type Document map[string]any

type undefined struct{}

// Undefined marks a field that has no value at all, as opposed to an
// explicit nil. Stores reject it, so documents go through StripUndefined
// before every write.
var Undefined any = undefined{}

// StripUndefined returns a copy of v with every Undefined value removed from
// maps and slices, recursively. nil values, timestamps and scalars are kept
// as they are. Slices keep the relative order of the remaining elements.
// StripUndefined is idempotent.
func StripUndefined(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case undefined:
		return Undefined
	case time.Time, *time.Time:
		return v
	case Document:
		return Document(stripMap(t))
	case map[string]any:
		return stripMap(t)
	case []any:
		out := make([]any, 0, len(t))
		for _, e := range t {
			if c := StripUndefined(e); c != Undefined {
				out = append(out, c)
			}
		}
		return out
	case []Document:
		out := make([]any, 0, len(t))
		for _, e := range t {
			out = append(out, StripUndefined(e))
		}
		return out
	default:
		return v
	}
}

func stripMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, e := range m {
		if c := StripUndefined(e); c != Undefined {
			out[k] = c
		}
	}
	return out
}

// Strip is StripUndefined for a whole document.
func (d Document) Strip() Document {
	return StripUndefined(d).(Document)
}

// isoLayout matches JavaScript's Date.prototype.toISOString.
const isoLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTimestamp normalizes a stored timestamp to an ISO-8601 string.
// Strings are passed through; time values and anything exposing Time() are
// converted to UTC; missing or unknown values fall back to the current time.
func FormatTimestamp(v any) string {
	return formatTimestamp(v, time.Now)
}

func formatTimestamp(v any, now func() time.Time) string {
	switch t := v.(type) {
	case string:
		if t != "" {
			return t
		}
	case time.Time:
		if !t.IsZero() {
			return t.UTC().Format(isoLayout)
		}
	case *time.Time:
		if t != nil && !t.IsZero() {
			return t.UTC().Format(isoLayout)
		}
	case interface{ Time() time.Time }:
		if tt := t.Time(); !tt.IsZero() {
			return tt.UTC().Format(isoLayout)
		}
	}
	return now().UTC().Format(isoLayout)
}

// optional maps "" or a nil pointer to Undefined.
func optional[T string | *string](v T) any {
	switch s := any(v).(type) {
	case string:
		if s == "" {
			return Undefined
		}
		return s
	case *string:
		if s == nil {
			return Undefined
		}
		return *s
	}
	return Undefined
}

// nullable maps a nil pointer to an explicit nil.
func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func (it Item) document() Document {
	groups := make([]any, len(it.SelectedVariations))
	for i, g := range it.SelectedVariations {
		vs := make([]any, len(g.Variations))
		for j, v := range g.Variations {
			vs[j] = Document{
				"variationId":     nullable(v.VariationID),
				"quantity":        v.Quantity,
				"name":            v.Name,
				"additionalPrice": v.AdditionalPrice,
				"halfSelection":   nullable(v.HalfSelection),
			}
		}
		groups[i] = Document{
			"groupId":    optional(g.GroupID),
			"groupName":  optional(g.GroupName),
			"variations": vs,
		}
	}

	var combination any
	if c := it.Combination; c != nil {
		var price any = Undefined
		if c.Price != nil {
			price = *c.Price
		}
		combination = Document{
			"first":  optional(c.First),
			"second": optional(c.Second),
			"price":  price,
		}
	}

	var border any
	if b := it.SelectedBorder; b != nil {
		border = Document{
			"name":            b.Name,
			"additionalPrice": b.AdditionalPrice,
		}
	}

	return Document{
		"menuItemId":         nullable(it.MenuItemID),
		"name":               optional(it.Name),
		"price":              it.Price,
		"quantity":           it.Quantity,
		"selectedVariations": groups,
		"isHalfPizza":        it.IsHalfPizza,
		"combination":        combination,
		"selectedBorder":     border,
		"subtotal":           it.Subtotal,
	}
}

// document renders the order for storage. Customer fields left empty in the
// request are Undefined and disappear after stripping.
func (o *Order) document(createdAt, updatedAt time.Time) Document {
	items := make([]any, len(o.Items))
	for i, it := range o.Items {
		items[i] = it.document()
	}
	return Document{
		"customerName":  optional(o.CustomerName),
		"customerPhone": optional(o.CustomerPhone),
		"address":       optional(o.Address),
		"paymentMethod": optional(o.PaymentMethod),
		"observations":  o.Observations,
		"items":         items,
		"status":        string(o.Status),
		"subtotal":      o.Subtotal,
		"frete":         o.Frete,
		"total":         o.Total,
		"discount":      o.Discount,
		"couponCode":    nullable(o.CouponCode),
		"createdAt":     createdAt,
		"updatedAt":     updatedAt,
	}
}

func nonNegative(p *decimal.Decimal) decimal.Decimal {
	if p == nil || p.IsNegative() {
		return decimal.Zero
	}
	return *p
}

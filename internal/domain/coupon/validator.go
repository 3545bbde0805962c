package coupon

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Check accepts or rejects a coupon for the given subtotal and returns the
// snapshot to keep in the session.
func Check(c *Coupon, subtotal decimal.Decimal) (*Applied, error) {
	if c == nil {
		return nil, ErrNotFound
	}
	if !c.Active {
		return nil, ErrInactive
	}
	if c.MinOrderValue != nil && c.MinOrderValue.GreaterThan(subtotal) {
		return nil, &MinimumNotMetError{Minimum: *c.MinOrderValue, Subtotal: subtotal}
	}
	return &Applied{
		ID:            c.ID,
		Code:          c.Name,
		Type:          c.Type,
		Value:         c.Value,
		MinOrderValue: c.MinOrderValue,
		Uses:          c.Uses,
		UsageLimit:    c.UsageLimit,
	}, nil
}

// Lookup trims the code, finds the coupon and checks it against subtotal.
func Lookup(ctx context.Context, finder Finder, code string, subtotal decimal.Decimal) (*Applied, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrNotFound
	}
	c, err := finder.FindByName(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}
	return Check(c, subtotal)
}

// Discount returns the amount taken off subtotal, floored at zero, capped at
// the subtotal and rounded to cents.
func (a Applied) Discount(subtotal decimal.Decimal) decimal.Decimal {
	if !subtotal.IsPositive() {
		return decimal.Zero
	}
	var amount decimal.Decimal
	switch a.Type {
	case DiscountPercentage:
		amount = subtotal.Mul(a.Value).Div(hundred)
	case DiscountFixed:
		amount = a.Value
	default:
		return decimal.Zero
	}
	if amount.IsNegative() {
		return decimal.Zero
	}
	return decimal.Min(amount, subtotal).Round(2)
}

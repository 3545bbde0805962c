// Package cart implements the shopping-cart session: line totals, subtotal,
// coupon application and the final amount shown to the customer.
package cart

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/pizza-kart/internal/domain/coupon"
	"github.com/xenking/pizza-kart/internal/domain/pricing"
)

// CheckoutRoute is the route on which the floating cart is not rendered.
const CheckoutRoute = "/checkout"

// Visible reports whether the cart widget should render on route.
func Visible(route string) bool {
	return strings.TrimRight(route, "/") != CheckoutRoute
}

// Line is an item in the cart with a stable id.
type Line struct {
	ID   string
	Item pricing.Item
}

// Session is the per-customer cart state. It is not safe for concurrent use.
type Session struct {
	Lines []Line
	// CouponCode is the code typed by the customer and not yet applied.
	CouponCode string
	Applied    *coupon.Applied
}

// Add appends an item and returns its line id.
func (s *Session) Add(item pricing.Item) string {
	if item.Quantity <= 0 {
		item.Quantity = 1
	}
	id := uuid.New().String()
	s.Lines = append(s.Lines, Line{ID: id, Item: item})
	return id
}

// Remove drops the line with the given id.
func (s *Session) Remove(id string) bool {
	for i, l := range s.Lines {
		if l.ID == id {
			s.Lines = append(s.Lines[:i], s.Lines[i+1:]...)
			return true
		}
	}
	return false
}

// Increase adds one unit to the line.
func (s *Session) Increase(id string) bool {
	l := s.line(id)
	if l == nil {
		return false
	}
	l.Item.Quantity++
	return true
}

// Decrease removes one unit from the line, dropping the line at zero.
func (s *Session) Decrease(id string) bool {
	l := s.line(id)
	if l == nil {
		return false
	}
	if l.Item.Quantity <= 1 {
		return s.Remove(id)
	}
	l.Item.Quantity--
	return true
}

func (s *Session) line(id string) *Line {
	for i := range s.Lines {
		if s.Lines[i].ID == id {
			return &s.Lines[i]
		}
	}
	return nil
}

// ItemCount returns the number of units in the cart.
func (s *Session) ItemCount() int {
	n := 0
	for _, l := range s.Lines {
		n += l.Item.Units()
	}
	return n
}

// LineTotal prices a single line.
func (s *Session) LineTotal(id string, lookup pricing.PriceLookup) decimal.Decimal {
	l := s.line(id)
	if l == nil {
		return decimal.Zero
	}
	return pricing.LineTotal(l.Item, lookup)
}

// Subtotal sums every line total.
func (s *Session) Subtotal(lookup pricing.PriceLookup) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range s.Lines {
		sum = sum.Add(pricing.LineTotal(l.Item, lookup))
	}
	return sum
}

// ApplyCoupon looks up the typed code and, when accepted, stores the coupon
// snapshot and clears the input. An empty input is a no-op. Rejections are
// coupon.ErrNotFound, coupon.ErrInactive or *coupon.MinimumNotMetError.
func (s *Session) ApplyCoupon(ctx context.Context, finder coupon.Finder, lookup pricing.PriceLookup) error {
	if strings.TrimSpace(s.CouponCode) == "" {
		return nil
	}
	applied, err := coupon.Lookup(ctx, finder, s.CouponCode, s.Subtotal(lookup))
	if err != nil {
		return err
	}
	s.Applied = applied
	s.CouponCode = ""
	return nil
}

// RemoveCoupon clears the applied coupon.
func (s *Session) RemoveCoupon() {
	s.Applied = nil
}

// DiscountAmount returns the discount of the applied coupon, if any.
func (s *Session) DiscountAmount(lookup pricing.PriceLookup) decimal.Decimal {
	if s.Applied == nil {
		return decimal.Zero
	}
	return s.Applied.Discount(s.Subtotal(lookup))
}

// FinalTotal is subtotal minus discount.
func (s *Session) FinalTotal(lookup pricing.PriceLookup) decimal.Decimal {
	return s.Subtotal(lookup).Sub(s.DiscountAmount(lookup))
}

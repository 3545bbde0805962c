package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/pizza-kart/internal/domain/cart"
	"github.com/xenking/pizza-kart/internal/domain/coupon"
	"github.com/xenking/pizza-kart/internal/domain/pricing"
	"github.com/xenking/pizza-kart/internal/domain/variation"
)

// ApplyCouponRequest checks a coupon code against a cart subtotal.
type ApplyCouponRequest struct {
	Code     string          `json:"code"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// ApplyCouponResponse carries the accepted coupon snapshot.
type ApplyCouponResponse struct {
	Coupon   *coupon.Applied `json:"coupon"`
	Discount decimal.Decimal `json:"discount"`
}

// ApplyCoupon handles POST /api/coupons/apply.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var req ApplyCouponRequest
	if !decode(w, r, &req) {
		return
	}
	applied, err := coupon.Lookup(r.Context(), h.coupons, req.Code, req.Subtotal)
	if err != nil {
		fail(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, ApplyCouponResponse{
		Coupon:   applied,
		Discount: applied.Discount(req.Subtotal),
	})
}

// QuoteRequest is the cart state to price.
type QuoteRequest struct {
	Items      []ItemRequest `json:"items"`
	CouponCode string        `json:"couponCode"`
	// Route is the storefront route the cart is shown on.
	Route string `json:"route"`
}

// QuoteLine is the priced line of a quote, in request order.
type QuoteLine struct {
	ID       string          `json:"id"`
	Name     string          `json:"name,omitempty"`
	Quantity int             `json:"quantity"`
	Extras   decimal.Decimal `json:"extras"`
	Total    decimal.Decimal `json:"total"`
}

// QuoteResponse is what the cart widget displays.
type QuoteResponse struct {
	Visible     bool            `json:"visible"`
	Lines       []QuoteLine     `json:"lines"`
	ItemCount   int             `json:"itemCount"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Coupon      *coupon.Applied `json:"coupon,omitempty"`
	CouponError string          `json:"couponError,omitempty"`
	Discount    decimal.Decimal `json:"discount"`
	Total       decimal.Decimal `json:"total"`
}

// QuoteCart handles POST /api/cart/quote. It prices the cart with the same
// engine used when the order is created. A rejected coupon does not fail
// the quote; the reason is returned in couponError.
func (h *Handler) QuoteCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req QuoteRequest
	if !decode(w, r, &req) {
		return
	}

	var lookup pricing.PriceLookup = variation.Load(ctx, h.variations)
	s := cart.Session{CouponCode: req.CouponCode}
	for _, it := range toPricingItems(req.Items) {
		s.Add(it)
	}

	resp := QuoteResponse{
		Visible: cart.Visible(req.Route),
		Lines:   make([]QuoteLine, len(s.Lines)),
	}
	if err := s.ApplyCoupon(ctx, h.coupons, lookup); err != nil {
		resp.CouponError = couponMessage(ctx, err)
	}
	for i, l := range s.Lines {
		resp.Lines[i] = QuoteLine{
			ID:       l.ID,
			Name:     l.Item.Name,
			Quantity: l.Item.Units(),
			Extras:   pricing.LineExtrasTotal(l.Item, lookup),
			Total:    s.LineTotal(l.ID, lookup),
		}
	}
	resp.ItemCount = s.ItemCount()
	resp.Subtotal = s.Subtotal(lookup)
	resp.Coupon = s.Applied
	resp.Discount = s.DiscountAmount(lookup)
	resp.Total = s.FinalTotal(lookup)

	writeJSON(w, http.StatusOK, resp)
}

// couponMessage turns a rejection into the text shown next to the coupon
// field. Store failures are logged; the customer only sees a generic reason.
func couponMessage(ctx context.Context, err error) string {
	var minimum *coupon.MinimumNotMetError
	switch {
	case errors.Is(err, coupon.ErrNotFound):
		return "coupon not found"
	case errors.Is(err, coupon.ErrInactive):
		return "coupon is inactive"
	case errors.As(err, &minimum):
		return minimum.Error()
	default:
		zctx.From(ctx).Error("Coupon lookup failed", zap.Error(err))
		return "coupon unavailable"
	}
}

// ListVariations handles GET /api/variations.
func (h *Handler) ListVariations(w http.ResponseWriter, r *http.Request) {
	vs, err := h.variations.List(r.Context())
	if err != nil {
		fail(r.Context(), w, err)
		return
	}
	if vs == nil {
		vs = []variation.Variation{}
	}
	writeJSON(w, http.StatusOK, vs)
}

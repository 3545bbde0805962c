// Package handler exposes the ordering core over a JSON HTTP API.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/pizza-kart/internal/domain/coupon"
	"github.com/xenking/pizza-kart/internal/domain/order"
	"github.com/xenking/pizza-kart/internal/domain/variation"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// Location interprets the calendar dates of range queries. Defaults to
	// time.Local.
	Location *time.Location
}

// Handler serves the order, coupon, cart and catalog endpoints.
type Handler struct {
	orders     *order.Service
	coupons    coupon.Finder
	variations variation.Repository
	loc        *time.Location
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	cfg HandlerConfig,
	orders *order.Service,
	coupons coupon.Finder,
	variations variation.Repository,
) *Handler {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Handler{
		orders:     orders,
		coupons:    coupons,
		variations: variations,
		loc:        cfg.Location,
	}
}

// Register mounts every API route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/orders", h.CreateOrder)
	mux.HandleFunc("GET /api/orders", h.ListOrdersByPhone)
	mux.HandleFunc("GET /api/orders/today", h.ListTodayOrders)
	mux.HandleFunc("GET /api/orders/range", h.ListOrdersByDateRange)
	mux.HandleFunc("GET /api/orders/{id}", h.GetOrder)
	mux.HandleFunc("PATCH /api/orders/{id}", h.UpdateOrder)
	mux.HandleFunc("POST /api/coupons/apply", h.ApplyCoupon)
	mux.HandleFunc("POST /api/cart/quote", h.QuoteCart)
	mux.HandleFunc("GET /api/variations", h.ListVariations)
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorResponse{Code: code, Message: msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// fail maps domain errors to responses. Store failures are reported without
// details; they were already logged by the service.
func fail(ctx context.Context, w http.ResponseWriter, err error) {
	var (
		invalid *order.InvalidRequestError
		minimum *coupon.MinimumNotMetError
		persist *order.PersistenceError
	)
	switch {
	case errors.As(err, &invalid):
		writeError(w, http.StatusBadRequest, invalid.Error())
	case errors.Is(err, coupon.ErrNotFound):
		writeError(w, http.StatusNotFound, "coupon not found")
	case errors.Is(err, coupon.ErrInactive):
		writeError(w, http.StatusUnprocessableEntity, "coupon is inactive")
	case errors.As(err, &minimum):
		writeError(w, http.StatusUnprocessableEntity, minimum.Error())
	case errors.As(err, &persist):
		writeError(w, http.StatusInternalServerError, "internal error")
	default:
		zctx.From(ctx).Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/pizza-kart/internal/domain/order"
)

// CreateOrderRequest is the order submission body. Subtotal and total are
// accepted and ignored; the server recomputes them.
type CreateOrderRequest struct {
	CustomerName  string           `json:"customerName"`
	CustomerPhone string           `json:"customerPhone"`
	Address       *string          `json:"address"`
	PaymentMethod *string          `json:"paymentMethod"`
	Observations  *string          `json:"observations"`
	Items         []ItemRequest    `json:"items"`
	Status        *string          `json:"status"`
	Subtotal      *decimal.Decimal `json:"subtotal"`
	Total         *decimal.Decimal `json:"total"`
	Frete         *decimal.Decimal `json:"frete"`
	Discount      *decimal.Decimal `json:"discount"`
	CouponCode    *string          `json:"couponCode"`
}

// UpdateOrderRequest is a partial order update.
type UpdateOrderRequest struct {
	Status        *string `json:"status"`
	CustomerName  *string `json:"customerName"`
	CustomerPhone *string `json:"customerPhone"`
	Address       *string `json:"address"`
	PaymentMethod *string `json:"paymentMethod"`
	Observations  *string `json:"observations"`
}

var knownStatuses = map[order.Status]struct{}{
	order.StatusPending:        {},
	order.StatusConfirmed:      {},
	order.StatusPreparing:      {},
	order.StatusOutForDelivery: {},
	order.StatusDelivered:      {},
	order.StatusCancelled:      {},
}

func parseStatus(s *string) (*order.Status, error) {
	if s == nil {
		return nil, nil
	}
	st := order.Status(*s)
	if _, ok := knownStatuses[st]; !ok {
		return nil, &order.InvalidRequestError{Field: "status", Reason: "unknown status " + *s}
	}
	return &st, nil
}

// CreateOrder handles POST /api/orders.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateOrderRequest
	if !decode(w, r, &req) {
		return
	}
	status, err := parseStatus(req.Status)
	if err != nil {
		fail(ctx, w, err)
		return
	}

	o, err := h.orders.Create(ctx, order.CreateRequest{
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		Address:       req.Address,
		PaymentMethod: req.PaymentMethod,
		Observations:  req.Observations,
		Items:         toPricingItems(req.Items),
		Status:        status,
		Subtotal:      req.Subtotal,
		Total:         req.Total,
		Frete:         req.Frete,
		Discount:      req.Discount,
		CouponCode:    req.CouponCode,
	})
	if err != nil {
		fail(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

// GetOrder handles GET /api/orders/{id}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(r.Context(), w, err)
		return
	}
	if o == nil {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// UpdateOrder handles PATCH /api/orders/{id}.
func (h *Handler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req UpdateOrderRequest
	if !decode(w, r, &req) {
		return
	}
	status, err := parseStatus(req.Status)
	if err != nil {
		fail(ctx, w, err)
		return
	}

	o, err := h.orders.Update(ctx, r.PathValue("id"), order.Patch{
		Status:        status,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		Address:       req.Address,
		PaymentMethod: req.PaymentMethod,
		Observations:  req.Observations,
	})
	if err != nil {
		fail(ctx, w, err)
		return
	}
	if o == nil {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// ListOrdersByPhone handles GET /api/orders?phone=.
func (h *Handler) ListOrdersByPhone(w http.ResponseWriter, r *http.Request) {
	phone := r.URL.Query().Get("phone")
	if phone == "" {
		writeError(w, http.StatusBadRequest, "phone is required")
		return
	}
	orders, err := h.orders.ListByPhone(r.Context(), phone)
	if err != nil {
		fail(r.Context(), w, err)
		return
	}
	writeOrders(w, orders)
}

// ListTodayOrders handles GET /api/orders/today?status=.
func (h *Handler) ListTodayOrders(w http.ResponseWriter, r *http.Request) {
	status := order.Status(r.URL.Query().Get("status"))
	orders, err := h.orders.ListToday(r.Context(), status)
	if err != nil {
		fail(r.Context(), w, err)
		return
	}
	writeOrders(w, orders)
}

const dateLayout = "2006-01-02"

// ListOrdersByDateRange handles GET /api/orders/range?from=&to=&status=.
func (h *Handler) ListOrdersByDateRange(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := time.ParseInLocation(dateLayout, q.Get("from"), h.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "from must be a YYYY-MM-DD date")
		return
	}
	to, err := time.ParseInLocation(dateLayout, q.Get("to"), h.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "to must be a YYYY-MM-DD date")
		return
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to is before from")
		return
	}

	orders, err := h.orders.ListByDateRange(r.Context(), from, to, order.Status(q.Get("status")))
	if err != nil {
		fail(r.Context(), w, err)
		return
	}
	writeOrders(w, orders)
}

func writeOrders(w http.ResponseWriter, orders []order.Order) {
	if orders == nil {
		orders = []order.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

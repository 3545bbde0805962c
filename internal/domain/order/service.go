package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/pizza-kart/internal/domain/pricing"
	"github.com/xenking/pizza-kart/internal/domain/variation"
)

// PersistenceError wraps a failure of the order store.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s order: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// InvalidRequestError indicates a request that cannot describe an order.
type InvalidRequestError struct {
	Field  string
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// CreateRequest is an untrusted order submission. Subtotal and Total are
// accepted for compatibility with existing clients and ignored.
type CreateRequest struct {
	CustomerName  string
	CustomerPhone string
	Address       *string
	PaymentMethod *string
	Observations  *string
	Items         []pricing.Item
	Status        *Status
	Subtotal      *decimal.Decimal
	Total         *decimal.Decimal
	Frete         *decimal.Decimal
	Discount      *decimal.Decimal
	CouponCode    *string
}

// Patch is a partial order update. Nil fields are left untouched.
type Patch struct {
	Status        *Status
	CustomerName  *string
	CustomerPhone *string
	Address       *string
	PaymentMethod *string
	Observations  *string
}

func (p Patch) fields(now time.Time) Document {
	var status any = Undefined
	if p.Status != nil {
		status = string(*p.Status)
	}
	return Document{
		"status":        status,
		"customerName":  optional(p.CustomerName),
		"customerPhone": optional(p.CustomerPhone),
		"address":       optional(p.Address),
		"paymentMethod": optional(p.PaymentMethod),
		"observations":  optional(p.Observations),
		"updatedAt":     now,
	}
}

// ServiceConfig holds non-dependency configuration for the Service.
type ServiceConfig struct {
	// Location defines calendar days for the today and date-range queries.
	// Defaults to time.Local.
	Location       *time.Location
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Service assembles, stores and reads orders. Every money amount stored is
// recomputed here; client totals are never trusted.
type Service struct {
	orders     Repository
	variations variation.Repository
	events     Publisher

	loc    *time.Location
	now    func() time.Time
	newID  func() string
	tracer trace.Tracer

	created   metric.Int64Counter
	delivered metric.Int64Counter
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	orders Repository,
	variations variation.Repository,
	events Publisher,
	cfg ServiceConfig,
) (*Service, error) {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = tracenoop.NewTracerProvider()
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = metricnoop.NewMeterProvider()
	}

	meter := cfg.MeterProvider.Meter("github.com/xenking/pizza-kart/internal/domain/order")
	created, err := meter.Int64Counter("pizza.orders.created",
		metric.WithDescription("Orders persisted"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create orders counter")
	}
	delivered, err := meter.Int64Counter("pizza.orders.delivered",
		metric.WithDescription("Orders transitioned into delivered"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create delivered counter")
	}

	return &Service{
		orders:     orders,
		variations: variations,
		events:     events,
		loc:        cfg.Location,
		now:        time.Now,
		newID:      func() string { return uuid.New().String() },
		tracer:     cfg.TracerProvider.Tracer("github.com/xenking/pizza-kart/internal/domain/order"),
		created:    created,
		delivered:  delivered,
	}, nil
}

// Create recomputes every line and the order totals, strips undefined fields
// and persists the order. Missing prices degrade to zero; only a store
// failure makes it fail.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.Create")
	defer span.End()

	// One catalog read per pricing pass.
	catalog := variation.Load(ctx, s.variations)

	items := make([]Item, len(req.Items))
	subtotal := decimal.Zero
	for i, in := range req.Items {
		items[i] = assembleItem(in, catalog)
		subtotal = subtotal.Add(items[i].Subtotal)
	}

	frete := nonNegative(req.Frete)
	discount := nonNegative(req.Discount)

	status := StatusPending
	if req.Status != nil && *req.Status != "" {
		status = *req.Status
	}
	observations := ""
	if req.Observations != nil {
		observations = *req.Observations
	}

	now := s.now()
	o := &Order{
		ID:            s.newID(),
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		Address:       req.Address,
		PaymentMethod: req.PaymentMethod,
		Observations:  observations,
		Items:         items,
		Status:        status,
		Subtotal:      subtotal,
		Frete:         frete,
		Discount:      discount,
		Total:         subtotal.Add(frete).Sub(discount),
		CouponCode:    req.CouponCode,
		CreatedAt:     FormatTimestamp(now),
		UpdatedAt:     FormatTimestamp(now),
	}
	span.SetAttributes(
		attribute.String("order.id", o.ID),
		attribute.Int("order.items", len(items)),
	)

	rec := Record{
		ID:        o.ID,
		Phone:     o.CustomerPhone,
		Status:    o.Status,
		CreatedAt: now,
		Doc:       o.document(now, now).Strip(),
	}
	if err := s.orders.Create(ctx, rec); err != nil {
		zctx.From(ctx).Error("Create order failed",
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, "create order")
		return nil, &PersistenceError{Op: "create", Err: err}
	}

	s.created.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(o.Status))))
	zctx.From(ctx).Info("Order created",
		zap.String("order_id", o.ID),
		zap.Stringer("total", o.Total),
	)
	return o, nil
}

// assembleItem recomputes one line and freezes the resolved variation
// prices into the stored copy.
func assembleItem(in pricing.Item, lookup pricing.PriceLookup) Item {
	resolved := pricing.Resolve(in, lookup)

	groups := make([]VariationGroup, 0, len(resolved.Groups))
	for _, g := range resolved.Groups {
		if len(g.Choices) == 0 {
			continue
		}
		vg := VariationGroup{
			GroupID:    strPtr(g.ID),
			GroupName:  strPtr(g.Name),
			Variations: make([]Variation, len(g.Choices)),
		}
		for j, c := range g.Choices {
			var half *string
			if c.HalfSelection != "" {
				h := string(c.HalfSelection)
				half = &h
			}
			vg.Variations[j] = Variation{
				VariationID:     strPtr(c.VariationID),
				Quantity:        c.Quantity,
				Name:            c.Name,
				AdditionalPrice: *c.Price,
				HalfSelection:   half,
			}
		}
		groups = append(groups, vg)
	}

	var combination *Combination
	if h := in.Half; h != nil && (h.First != "" || h.Second != "" || h.Price != nil) {
		combination = &Combination{First: h.First, Second: h.Second, Price: h.Price}
	}

	var border *Border
	if b := in.Border; b != nil {
		border = &Border{Name: b.Name, AdditionalPrice: b.Price}
	}

	return Item{
		MenuItemID:         strPtr(in.MenuItemID),
		Name:               strPtr(in.Name),
		Price:              pricing.BaseUnitPrice(in),
		Quantity:           in.Units(),
		SelectedVariations: groups,
		IsHalfPizza:        in.IsHalfPizza(),
		Combination:        combination,
		SelectedBorder:     border,
		Subtotal:           pricing.LineTotal(resolved, pricing.NoLookup),
	}
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Get returns the order or nil when it does not exist.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, s.persistenceError(ctx, "get", err)
	}
	return o, nil
}

// ListByPhone returns the customer's orders, newest first.
func (s *Service) ListByPhone(ctx context.Context, phone string) ([]Order, error) {
	orders, err := s.orders.ListByPhone(ctx, phone)
	if err != nil {
		return nil, s.persistenceError(ctx, "list", err)
	}
	return orders, nil
}

// ListToday returns orders created since local midnight, optionally filtered
// by status.
func (s *Service) ListToday(ctx context.Context, status Status) ([]Order, error) {
	orders, err := s.orders.ListCreatedBetween(ctx, s.startOfDay(s.now()), time.Time{})
	if err != nil {
		return nil, s.persistenceError(ctx, "list", err)
	}
	return filterStatus(orders, status), nil
}

// ListByDateRange returns orders created from the start of start's day to
// the end of end's day, optionally filtered by status.
func (s *Service) ListByDateRange(ctx context.Context, start, end time.Time, status Status) ([]Order, error) {
	from := s.startOfDay(start)
	to := s.startOfDay(end).AddDate(0, 0, 1).Add(-time.Millisecond)
	orders, err := s.orders.ListCreatedBetween(ctx, from, to)
	if err != nil {
		return nil, s.persistenceError(ctx, "list", err)
	}
	return filterStatus(orders, status), nil
}

func (s *Service) startOfDay(t time.Time) time.Time {
	t = t.In(s.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.loc)
}

func filterStatus(orders []Order, status Status) []Order {
	if status == "" || status == StatusAll {
		return orders
	}
	out := make([]Order, 0, len(orders))
	for _, o := range orders {
		if o.Status == status {
			out = append(out, o)
		}
	}
	return out
}

// Update applies the patch and returns the re-read order, or nil when the
// order does not exist. A transition into delivered publishes OrderDelivered
// after the write; publishing failures are logged and never returned.
func (s *Service) Update(ctx context.Context, id string, p Patch) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.Update", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	current, err := s.orders.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, s.persistenceError(ctx, "get", err)
	}

	now := s.now()
	change := Change{
		Status:    p.Status,
		UpdatedAt: now,
		Fields:    p.fields(now).Strip(),
	}
	if err := s.orders.Update(ctx, id, change); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "update order")
		return nil, s.persistenceError(ctx, "update", err)
	}

	if p.Status != nil && *p.Status == StatusDelivered && current.Status != StatusDelivered {
		s.publishDelivered(ctx, current, now)
	}

	return s.Get(ctx, id)
}

func (s *Service) publishDelivered(ctx context.Context, o *Order, at time.Time) {
	s.delivered.Add(ctx, 1)
	if s.events == nil {
		return
	}
	e := OrderDelivered{
		OrderID:       o.ID,
		CustomerName:  o.CustomerName,
		CustomerPhone: o.CustomerPhone,
		Items:         o.Items,
		DeliveredAt:   at,
	}
	if err := s.events.PublishOrderDelivered(ctx, e); err != nil {
		zctx.From(ctx).Warn("Publish order delivered",
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
	}
}

func (s *Service) persistenceError(ctx context.Context, op string, err error) error {
	zctx.From(ctx).Error("Order store failure",
		zap.String("op", op),
		zap.Error(err),
	)
	return &PersistenceError{Op: op, Err: err}
}

package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// OrderDelivered is published once an order transitions into the delivered
// status.
type OrderDelivered struct {
	OrderID       string    `json:"orderId"`
	CustomerName  string    `json:"customerName"`
	CustomerPhone string    `json:"customerPhone"`
	Items         []Item    `json:"items"`
	DeliveredAt   time.Time `json:"deliveredAt"`
}

// Publisher delivers domain events to their subscribers.
type Publisher interface {
	PublishOrderDelivered(ctx context.Context, e OrderDelivered) error
}

// DeliveredHandler consumes OrderDelivered events.
type DeliveredHandler func(ctx context.Context, e OrderDelivered) error

// ErrBusFull is returned by LocalBus when its buffer is exhausted.
var ErrBusFull = errors.New("event bus full")

var _ Publisher = (*LocalBus)(nil)

// LocalBus is an in-process Publisher. Events are buffered and handed to the
// handler by Run on its own goroutine.
type LocalBus struct {
	ch chan OrderDelivered
}

// NewLocalBus creates a LocalBus buffering up to size events.
func NewLocalBus(size int) *LocalBus {
	return &LocalBus{ch: make(chan OrderDelivered, size)}
}

// PublishOrderDelivered enqueues the event without blocking.
func (b *LocalBus) PublishOrderDelivered(_ context.Context, e OrderDelivered) error {
	select {
	case b.ch <- e:
		return nil
	default:
		return ErrBusFull
	}
}

// Run hands events to h until ctx is cancelled. Handler errors are logged.
func (b *LocalBus) Run(ctx context.Context, h DeliveredHandler) error {
	lg := zctx.From(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-b.ch:
			if err := h(ctx, e); err != nil {
				lg.Error("Handle order delivered",
					zap.String("order_id", e.OrderID),
					zap.Error(err),
				)
			}
		}
	}
}

// Package loyalty keeps a punch card per customer phone and credits it every
// time one of the customer's orders is delivered.
package loyalty

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/pizza-kart/internal/domain/order"
)

// DefaultRewardEvery is the number of deliveries that earns a reward.
const DefaultRewardEvery = 10

// Card is a customer's loyalty punch card.
type Card struct {
	Phone          string
	CustomerName   string
	Deliveries     int
	Items          int
	LastDeliveryAt time.Time
}

// Repository persists loyalty cards.
type Repository interface {
	// RecordDelivery increments the card for phone, creating it when
	// missing, and returns the updated card.
	RecordDelivery(ctx context.Context, phone, name string, items int, at time.Time) (*Card, error)
}

// Service consumes OrderDelivered events.
type Service struct {
	cards       Repository
	rewardEvery int
}

// NewService creates a loyalty Service. rewardEvery <= 0 selects
// DefaultRewardEvery.
func NewService(cards Repository, rewardEvery int) *Service {
	if rewardEvery <= 0 {
		rewardEvery = DefaultRewardEvery
	}
	return &Service{cards: cards, rewardEvery: rewardEvery}
}

// HandleOrderDelivered credits the customer's card. Orders without a phone
// number cannot be attributed and are skipped.
func (s *Service) HandleOrderDelivered(ctx context.Context, e order.OrderDelivered) error {
	lg := zctx.From(ctx).With(zap.String("order_id", e.OrderID))

	phone := strings.TrimSpace(e.CustomerPhone)
	if phone == "" {
		lg.Debug("Skip loyalty for order without phone")
		return nil
	}

	items := 0
	for _, it := range e.Items {
		items += it.Quantity
	}

	card, err := s.cards.RecordDelivery(ctx, phone, e.CustomerName, items, e.DeliveredAt)
	if err != nil {
		return errors.Wrap(err, "record delivery")
	}

	lg.Info("Loyalty card credited",
		zap.String("phone", phone),
		zap.Int("deliveries", card.Deliveries),
	)
	if s.RewardEarned(card) {
		lg.Info("Loyalty reward earned",
			zap.String("phone", phone),
			zap.String("customer", card.CustomerName),
			zap.Int("deliveries", card.Deliveries),
		)
	}
	return nil
}

// RewardEarned reports whether the card just reached a reward threshold.
func (s *Service) RewardEarned(c *Card) bool {
	return c != nil && c.Deliveries > 0 && c.Deliveries%s.rewardEvery == 0
}

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/pizza-kart/internal/domain/loyalty"
)

const recordDeliverySQL = `INSERT INTO loyalty_cards (phone, customer_name, deliveries, items, last_delivery_at)
	VALUES ($1, $2, 1, $3, $4)
	ON CONFLICT (phone) DO UPDATE SET
		customer_name = COALESCE(NULLIF(EXCLUDED.customer_name, ''), loyalty_cards.customer_name),
		deliveries = loyalty_cards.deliveries + 1,
		items = loyalty_cards.items + EXCLUDED.items,
		last_delivery_at = EXCLUDED.last_delivery_at
	RETURNING phone, customer_name, deliveries, items, last_delivery_at`

var _ loyalty.Repository = (*LoyaltyRepository)(nil)

// LoyaltyRepository keeps loyalty punch cards in PostgreSQL.
type LoyaltyRepository struct {
	pool *pgxpool.Pool
}

// NewLoyaltyRepository returns a LoyaltyRepository that uses the given pool.
func NewLoyaltyRepository(pool *pgxpool.Pool) *LoyaltyRepository {
	return &LoyaltyRepository{pool: pool}
}

// RecordDelivery atomically credits one delivery to the phone's card.
func (r *LoyaltyRepository) RecordDelivery(
	ctx context.Context,
	phone, name string,
	items int,
	at time.Time,
) (*loyalty.Card, error) {
	rows, err := r.pool.Query(ctx, recordDeliverySQL, phone, name, int32(items), at)
	if err != nil {
		return nil, fmt.Errorf("recording delivery for %q: %w", phone, err)
	}

	card, err := pgx.CollectExactlyOneRow(rows, scanCard)
	if err != nil {
		return nil, fmt.Errorf("recording delivery for %q: %w", phone, err)
	}
	return &card, nil
}

func scanCard(row pgx.CollectableRow) (loyalty.Card, error) {
	var (
		c          loyalty.Card
		deliveries int32
		items      int32
	)
	err := row.Scan(&c.Phone, &c.CustomerName, &deliveries, &items, &c.LastDeliveryAt)
	c.Deliveries = int(deliveries)
	c.Items = int(items)
	return c, err
}

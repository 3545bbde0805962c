// Package redis carries OrderDelivered events over a Redis stream and caches
// the variation catalog.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/pizza-kart/internal/domain/order"
)

const (
	// DefaultStream is the stream key used when none is configured.
	DefaultStream = "pizza.orders.delivered"
	// DefaultGroup is the consumer group shared by every API replica, so
	// each event is handled by exactly one of them.
	DefaultGroup = "pizza-loyalty"
)

const (
	typeOrderDelivered = "order.delivered"
	eventField         = "event"

	streamMaxLen = 10000
	readCount    = 16
	readBlock    = time.Second
	// Entries pending longer than this belong to a consumer that died.
	claimIdle = time.Minute

	minBackoff = 100 * time.Millisecond
	maxBackoff = 5 * time.Second
)

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func encodeDelivered(e order.OrderDelivered) ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Type: typeOrderDelivered, Payload: payload})
}

func decodeDelivered(data []byte) (order.OrderDelivered, error) {
	var (
		env envelope
		e   order.OrderDelivered
	)
	if err := json.Unmarshal(data, &env); err != nil {
		return e, errors.Wrap(err, "decode envelope")
	}
	if env.Type != typeOrderDelivered {
		return e, errors.Errorf("unexpected event type %q", env.Type)
	}
	if err := json.Unmarshal(env.Payload, &e); err != nil {
		return e, errors.Wrap(err, "decode payload")
	}
	return e, nil
}

// EventBusConfig names the stream and the consumer group. Empty fields get
// defaults; Consumer defaults to a name unique to this process.
type EventBusConfig struct {
	Stream   string
	Group    string
	Consumer string
}

func (c *EventBusConfig) setDefaults() {
	if c.Stream == "" {
		c.Stream = DefaultStream
	}
	if c.Group == "" {
		c.Group = DefaultGroup
	}
	if c.Consumer == "" {
		host, _ := os.Hostname()
		if host == "" {
			host = "pizza"
		}
		c.Consumer = host + "-" + uuid.NewString()[:8]
	}
}

var _ order.Publisher = (*EventBus)(nil)

// EventBus publishes OrderDelivered events to a Redis stream and consumes
// them through a consumer group.
type EventBus struct {
	client redis.UniversalClient
	cfg    EventBusConfig
}

// NewEventBus creates an EventBus.
func NewEventBus(client redis.UniversalClient, cfg EventBusConfig) *EventBus {
	cfg.setDefaults()
	return &EventBus{client: client, cfg: cfg}
}

// PublishOrderDelivered implements order.Publisher.
func (b *EventBus) PublishOrderDelivered(ctx context.Context, e order.OrderDelivered) error {
	data, err := encodeDelivered(e)
	if err != nil {
		return errors.Wrap(err, "encode event")
	}
	if err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: b.cfg.Stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{eventField: data},
	}).Err(); err != nil {
		return fmt.Errorf("appending to %q: %w", b.cfg.Stream, err)
	}
	return nil
}

// Run consumes the stream as a member of the group and hands every event to
// h until ctx is cancelled. Every entry is acknowledged once h returns;
// malformed entries and handler errors are logged and skipped. Redis errors
// are retried with backoff, so Run only returns when ctx is done.
func (b *EventBus) Run(ctx context.Context, h order.DeliveredHandler) error {
	lg := zctx.From(ctx).With(
		zap.String("stream", b.cfg.Stream),
		zap.String("group", b.cfg.Group),
		zap.String("consumer", b.cfg.Consumer),
	)

	backoff := minBackoff
	wait := func(err error) bool {
		lg.Warn("Order events unavailable, retrying", zap.Error(err), zap.Duration("backoff", backoff))
		t := time.NewTimer(backoff)
		defer t.Stop()
		backoff = min(backoff*2, maxBackoff)
		select {
		case <-ctx.Done():
			return false
		case <-t.C:
			return true
		}
	}

	for {
		err := b.ensureGroup(ctx)
		if err == nil {
			break
		}
		if !wait(err) {
			return nil
		}
	}
	lg.Info("Listening for order events")
	backoff = minBackoff

	for ctx.Err() == nil {
		// Take over entries a dead replica read but never acknowledged.
		claimed, _, err := b.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   b.cfg.Stream,
			Group:    b.cfg.Group,
			Consumer: b.cfg.Consumer,
			MinIdle:  claimIdle,
			Start:    "0-0",
			Count:    readCount,
		}).Result()
		if err == nil && len(claimed) > 0 {
			b.handle(ctx, lg, h, claimed)
			continue
		}

		streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    b.cfg.Group,
			Consumer: b.cfg.Consumer,
			Streams:  []string{b.cfg.Stream, ">"},
			Count:    readCount,
			Block:    readBlock,
		}).Result()
		switch {
		case err == nil:
			backoff = minBackoff
			for _, s := range streams {
				b.handle(ctx, lg, h, s.Messages)
			}
		case errors.Is(err, redis.Nil):
			backoff = minBackoff
		case ctx.Err() != nil:
			return nil
		case strings.HasPrefix(err.Error(), "NOGROUP"):
			// The stream was deleted under us.
			if gerr := b.ensureGroup(ctx); gerr != nil && !wait(gerr) {
				return nil
			}
		default:
			if !wait(err) {
				return nil
			}
		}
	}
	return nil
}

func (b *EventBus) handle(ctx context.Context, lg *zap.Logger, h order.DeliveredHandler, msgs []redis.XMessage) {
	for _, msg := range msgs {
		raw, _ := msg.Values[eventField].(string)
		e, err := decodeDelivered([]byte(raw))
		if err != nil {
			lg.Warn("Skip malformed event", zap.String("entry_id", msg.ID), zap.Error(err))
		} else if err := h(ctx, e); err != nil {
			lg.Error("Handle order delivered",
				zap.String("order_id", e.OrderID),
				zap.Error(err),
			)
		}
		if err := b.client.XAck(ctx, b.cfg.Stream, b.cfg.Group, msg.ID).Err(); err != nil {
			lg.Warn("Acknowledge event", zap.String("entry_id", msg.ID), zap.Error(err))
		}
	}
}

// ensureGroup creates the stream and the group when missing. New groups start
// at the beginning of the stream so events published before the first
// replica started are not lost.
func (b *EventBus) ensureGroup(ctx context.Context) error {
	err := b.client.XGroupCreateMkStream(ctx, b.cfg.Stream, b.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("creating group %q on %q: %w", b.cfg.Group, b.cfg.Stream, err)
	}
	return nil
}

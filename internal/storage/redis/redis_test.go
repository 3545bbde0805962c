package redis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/pizza-kart/internal/domain/order"
	"github.com/xenking/pizza-kart/internal/domain/variation"
)

func TestEnvelope(t *testing.T) {
	name := "Calabresa"
	in := order.OrderDelivered{
		OrderID:       "o1",
		CustomerName:  "Ana",
		CustomerPhone: "5511",
		Items:         []order.Item{{Name: &name, Quantity: 2, Subtotal: decimal.NewFromInt(40)}},
		DeliveredAt:   time.Date(2026, 1, 1, 20, 0, 0, 0, time.UTC),
	}

	data, err := encodeDelivered(in)
	require.NoError(t, err)

	out, err := decodeDelivered(data)
	require.NoError(t, err)
	assert.Equal(t, in.OrderID, out.OrderID)
	assert.Equal(t, in.CustomerPhone, out.CustomerPhone)
	assert.True(t, in.DeliveredAt.Equal(out.DeliveredAt))
	require.Len(t, out.Items, 1)
	assert.Equal(t, 2, out.Items[0].Quantity)

	_, err = decodeDelivered([]byte(`{"type":"other","payload":{}}`))
	assert.Error(t, err)
	_, err = decodeDelivered([]byte(`not json`))
	assert.Error(t, err)
}

type mockVariations struct {
	list  []variation.Variation
	err   error
	calls int
}

func (m *mockVariations) List(_ context.Context) ([]variation.Variation, error) {
	m.calls++
	return m.list, m.err
}

// unreachable returns a client whose every command fails fast.
func unreachable(t *testing.T) *redis.Client {
	t.Helper()
	c := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCatalogCache_FallsThroughWhenRedisDown(t *testing.T) {
	next := &mockVariations{list: []variation.Variation{{ID: "bacon", AdditionalPrice: decimal.NewFromInt(5)}}}
	cache := NewCatalogCache(unreachable(t), next, 0)

	vs, err := cache.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, vs, 1)
	assert.Equal(t, 1, next.calls)
}

func TestCatalogCache_PropagatesRepositoryError(t *testing.T) {
	next := &mockVariations{err: errors.New("db down")}
	cache := NewCatalogCache(unreachable(t), next, time.Minute)

	_, err := cache.List(context.Background())
	assert.ErrorIs(t, err, next.err)
}

func TestEventBus_Defaults(t *testing.T) {
	bus := NewEventBus(unreachable(t), EventBusConfig{})
	assert.Equal(t, DefaultStream, bus.cfg.Stream)
	assert.Equal(t, DefaultGroup, bus.cfg.Group)
	assert.NotEmpty(t, bus.cfg.Consumer)

	other := NewEventBus(unreachable(t), EventBusConfig{})
	assert.NotEqual(t, bus.cfg.Consumer, other.cfg.Consumer)
}

func TestEventBus_PublishError(t *testing.T) {
	bus := NewEventBus(unreachable(t), EventBusConfig{})

	err := bus.PublishOrderDelivered(context.Background(), order.OrderDelivered{OrderID: "o1"})
	assert.Error(t, err)
}

func TestEventBus_RunRetriesWhileRedisDown(t *testing.T) {
	bus := NewEventBus(unreachable(t), EventBusConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- bus.Run(ctx, func(context.Context, order.OrderDelivered) error { return nil })
	}()

	select {
	case err := <-done:
		t.Fatalf("Run returned before cancellation: %v", err)
	case <-time.After(300 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestEventBus_OneHandlerPerEvent(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		calls atomic.Int32
		wg    sync.WaitGroup
	)
	handler := func(_ context.Context, e order.OrderDelivered) error {
		if e.OrderID == "o1" {
			calls.Add(1)
		}
		return nil
	}
	for _, consumer := range []string{"api-1", "api-2"} {
		bus := NewEventBus(client, EventBusConfig{Stream: "test.delivered", Consumer: consumer})
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, bus.Run(ctx, handler))
		}()
	}

	// The group exists once either consumer is up.
	require.Eventually(t, func() bool {
		return client.XPending(ctx, "test.delivered", DefaultGroup).Err() == nil
	}, 5*time.Second, 20*time.Millisecond)

	publisher := NewEventBus(client, EventBusConfig{Stream: "test.delivered", Consumer: "publisher"})
	require.NoError(t, publisher.PublishOrderDelivered(ctx, order.OrderDelivered{OrderID: "o1", CustomerPhone: "5511"}))

	require.Eventually(t, func() bool { return calls.Load() == 1 }, 5*time.Second, 20*time.Millisecond)
	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())

	pending, err := client.XPending(ctx, "test.delivered", DefaultGroup).Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)

	cancel()
	wg.Wait()
}

func TestEventBus_SkipsMalformedEntries(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewEventBus(client, EventBusConfig{Stream: "test.delivered"})
	require.NoError(t, bus.ensureGroup(ctx))
	require.NoError(t, client.XAdd(ctx, &redis.XAddArgs{
		Stream: "test.delivered",
		Values: map[string]any{eventField: "not json"},
	}).Err())
	require.NoError(t, bus.PublishOrderDelivered(ctx, order.OrderDelivered{OrderID: "o2"}))

	got := make(chan string, 2)
	done := make(chan error, 1)
	go func() {
		done <- bus.Run(ctx, func(_ context.Context, e order.OrderDelivered) error {
			got <- e.OrderID
			return nil
		})
	}()

	select {
	case id := <-got:
		assert.Equal(t, "o2", id)
	case <-time.After(5 * time.Second):
		t.Fatal("event not delivered")
	}

	cancel()
	assert.NoError(t, <-done)
}

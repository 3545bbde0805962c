//go:build integration

package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/pizza-kart/internal/domain/order"
	"github.com/xenking/pizza-kart/internal/domain/variation"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestEventBus_RoundTrip(t *testing.T) {
	client := startRedis(t)
	bus := NewEventBus(client, EventBusConfig{Stream: "test.delivered"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan order.OrderDelivered, 1)
	done := make(chan error, 1)
	go func() {
		done <- bus.Run(ctx, func(_ context.Context, e order.OrderDelivered) error {
			got <- e
			return nil
		})
	}()

	// The group reads from the start of the stream, so publishing before
	// Run has joined is fine.
	require.NoError(t, bus.PublishOrderDelivered(ctx, order.OrderDelivered{OrderID: "o1", CustomerPhone: "5511"}))

	select {
	case e := <-got:
		assert.Equal(t, "o1", e.OrderID)
		assert.Equal(t, "5511", e.CustomerPhone)
	case <-time.After(10 * time.Second):
		t.Fatal("event not delivered")
	}

	cancel()
	assert.NoError(t, <-done)
}

func TestCatalogCache_ReadThrough(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()

	next := &mockVariations{list: []variation.Variation{{ID: "bacon", Name: "Bacon", AdditionalPrice: decimal.NewFromInt(5)}}}
	cache := NewCatalogCache(client, next, time.Minute)

	for range 3 {
		vs, err := cache.List(ctx)
		require.NoError(t, err)
		require.Len(t, vs, 1)
		assert.True(t, decimal.NewFromInt(5).Equal(vs[0].AdditionalPrice))
	}
	assert.Equal(t, 1, next.calls)

	require.NoError(t, cache.Invalidate(ctx))
	_, err := cache.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
}

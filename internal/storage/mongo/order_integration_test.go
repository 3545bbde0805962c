//go:build integration

package mongo

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/pizza-kart/internal/domain/order"
)

func startMongo(t *testing.T) *OrderRepository {
	t.Helper()
	ctx := context.Background()

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "27017/tcp")
	require.NoError(t, err)

	client, err := Connect(ctx, fmt.Sprintf("mongodb://%s:%s", host, port.Port()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	repo := NewOrderRepository(client.Database("pizza_test"))
	require.NoError(t, repo.EnsureIndexes(ctx))
	return repo
}

func TestOrderRepository(t *testing.T) {
	repo := startMongo(t)
	ctx := context.Background()

	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		created := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, repo.Create(ctx, order.Record{
			ID:        id,
			Phone:     "5511",
			Status:    order.StatusPending,
			CreatedAt: created,
			Doc: order.Document{
				"customerName":  "Ana",
				"customerPhone": "5511",
				"status":        "pending",
				"total":         decimal.RequireFromString("19.90"),
				"couponCode":    nil,
				"items":         []any{},
				"createdAt":     created,
				"updatedAt":     created,
			},
		}))
	}

	o, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("19.9").Equal(o.Total))
	assert.Equal(t, "2026-04-01T12:00:00.000Z", o.CreatedAt)

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, order.ErrNotFound)

	all, err := repo.ListByPhone(ctx, "5511")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID, "newest first")

	ranged, err := repo.ListCreatedBetween(ctx, base.Add(30*time.Minute), base.Add(90*time.Minute))
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, "b", ranged[0].ID)

	delivered := order.StatusDelivered
	require.NoError(t, repo.Update(ctx, "a", order.Change{
		Status:    &delivered,
		UpdatedAt: base.Add(5 * time.Hour),
		Fields:    order.Document{"status": "delivered"},
	}))
	o, err = repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, order.StatusDelivered, o.Status)
	assert.Equal(t, "2026-04-01T17:00:00.000Z", o.UpdatedAt)

	err = repo.Update(ctx, "missing", order.Change{UpdatedAt: base})
	assert.ErrorIs(t, err, order.ErrNotFound)
}

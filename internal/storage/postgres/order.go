package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/pizza-kart/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders (id, customer_phone, status, created_at, updated_at, doc)
		VALUES ($1, $2, $3, $4, $4, $5)`

	getOrderSQL = `SELECT id, doc, created_at, updated_at FROM orders WHERE id = $1`

	listOrdersByPhoneSQL = `SELECT id, doc, created_at, updated_at FROM orders
		WHERE customer_phone = $1 ORDER BY created_at DESC`

	listOrdersSinceSQL = `SELECT id, doc, created_at, updated_at FROM orders
		WHERE created_at >= $1 ORDER BY created_at DESC`

	listOrdersBetweenSQL = `SELECT id, doc, created_at, updated_at FROM orders
		WHERE created_at >= $1 AND created_at <= $2 ORDER BY created_at DESC`

	// Patched fields are merged into the document; the indexed columns
	// follow the document.
	updateOrderSQL = `UPDATE orders SET
		doc = doc || $2::jsonb,
		status = COALESCE($3, status),
		customer_phone = COALESCE($4, customer_phone),
		updated_at = $5
		WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. The whole document is stored in the JSONB
// column.
func (r *OrderRepository) Create(ctx context.Context, rec order.Record) error {
	doc, err := json.Marshal(rec.Doc)
	if err != nil {
		return fmt.Errorf("marshaling order document: %w", err)
	}

	_, err = r.pool.Exec(ctx, createOrderSQL,
		rec.ID, rec.Phone, string(rec.Status), rec.CreatedAt, doc,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", rec.ID, err)
	}

	return nil
}

// Get returns order.ErrNotFound when no order has the given id.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

// ListByPhone returns the orders placed with the phone number, newest first.
func (r *OrderRepository) ListByPhone(ctx context.Context, phone string) ([]order.Order, error) {
	return r.list(ctx, listOrdersByPhoneSQL, phone)
}

// ListCreatedBetween returns orders created in [from, to], newest first. A
// zero to leaves the range open.
func (r *OrderRepository) ListCreatedBetween(ctx context.Context, from, to time.Time) ([]order.Order, error) {
	if to.IsZero() {
		return r.list(ctx, listOrdersSinceSQL, from)
	}
	return r.list(ctx, listOrdersBetweenSQL, from, to)
}

func (r *OrderRepository) list(ctx context.Context, sql string, args ...any) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}

	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return orders, nil
}

// Update merges the change into the stored document. It returns
// order.ErrNotFound when no row matched.
func (r *OrderRepository) Update(ctx context.Context, id string, c order.Change) error {
	fields, err := json.Marshal(c.Fields)
	if err != nil {
		return fmt.Errorf("marshaling order patch: %w", err)
	}

	var status, phone *string
	if c.Status != nil {
		s := string(*c.Status)
		status = &s
	}
	if p, ok := c.Fields["customerPhone"].(string); ok {
		phone = &p
	}

	tag, err := r.pool.Exec(ctx, updateOrderSQL, id, fields, status, phone, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("updating order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o         order.Order
		id        string
		doc       []byte
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(&id, &doc, &createdAt, &updatedAt); err != nil {
		return o, err
	}
	if err := json.Unmarshal(doc, &o); err != nil {
		return o, fmt.Errorf("decoding order %q: %w", id, err)
	}
	o.ID = id
	o.CreatedAt = order.FormatTimestamp(createdAt)
	o.UpdatedAt = order.FormatTimestamp(updatedAt)
	return o, nil
}

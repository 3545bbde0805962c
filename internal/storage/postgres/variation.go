package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/pizza-kart/internal/domain/variation"
)

const (
	listVariationsSQL = `SELECT id, name, additional_price FROM variations ORDER BY name, id`

	upsertVariationSQL = `INSERT INTO variations (id, name, additional_price) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, additional_price = EXCLUDED.additional_price`
)

var _ variation.Repository = (*VariationRepository)(nil)

// VariationRepository serves the variation catalog from PostgreSQL.
type VariationRepository struct {
	pool *pgxpool.Pool
}

// NewVariationRepository returns a VariationRepository that uses the given pool.
func NewVariationRepository(pool *pgxpool.Pool) *VariationRepository {
	return &VariationRepository{pool: pool}
}

// List returns the whole catalog ordered by name.
func (r *VariationRepository) List(ctx context.Context) ([]variation.Variation, error) {
	rows, err := r.pool.Query(ctx, listVariationsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing variations: %w", err)
	}

	vs, err := pgx.CollectRows(rows, pgx.RowToStructByPos[variation.Variation])
	if err != nil {
		return nil, fmt.Errorf("listing variations: %w", err)
	}
	return vs, nil
}

// Upsert inserts the variation or replaces its name and price.
func (r *VariationRepository) Upsert(ctx context.Context, v variation.Variation) error {
	if _, err := r.pool.Exec(ctx, upsertVariationSQL, v.ID, v.Name, v.AdditionalPrice); err != nil {
		return fmt.Errorf("upserting variation %q: %w", v.ID, err)
	}
	return nil
}

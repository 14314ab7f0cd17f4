package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// RateRepository persists admin price-book overrides.
type RateRepository struct {
	db *sqlx.DB
}

// NewRateRepository creates a new rate repository
func NewRateRepository(db *sqlx.DB) *RateRepository {
	return &RateRepository{db: db}
}

// Overrides returns all stored overrides as a key/value map
func (r *RateRepository) Overrides(ctx context.Context) (map[string]string, error) {
	query := `SELECT key, value FROM rate_overrides`

	rows := []struct {
		Key   string `db:"key"`
		Value string `db:"value"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to load rate overrides: %w", err)
	}

	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.Key] = row.Value
	}
	return out, nil
}

// SetOverride upserts one override
func (r *RateRepository) SetOverride(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO rate_overrides (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = $2, updated_at = $3
	`
	if _, err := r.db.ExecContext(ctx, query, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to set rate override: %w", err)
	}
	return nil
}

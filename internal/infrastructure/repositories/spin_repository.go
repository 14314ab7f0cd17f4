package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// SpinRepository persists roulette spin balances.
type SpinRepository struct {
	db *sqlx.DB
}

// NewSpinRepository creates a new spin repository
func NewSpinRepository(db *sqlx.DB) *SpinRepository {
	return &SpinRepository{db: db}
}

// CreditSpins adds purchased spins to a user's balance
func (r *SpinRepository) CreditSpins(ctx context.Context, userID int64, n int) error {
	query := `
		INSERT INTO spin_balances (user_id, spins)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET spins = spin_balances.spins + $2
	`
	if _, err := r.db.ExecContext(ctx, query, userID, n); err != nil {
		return fmt.Errorf("failed to credit spins: %w", err)
	}
	return nil
}

// Spins returns the current balance, zero for unknown users
func (r *SpinRepository) Spins(ctx context.Context, userID int64) (int, error) {
	query := `SELECT spins FROM spin_balances WHERE user_id = $1`

	var spins int
	err := r.db.GetContext(ctx, &spins, query, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get spin balance: %w", err)
	}
	return spins, nil
}

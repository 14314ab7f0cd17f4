package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/jetstore/store-service/internal/domain/entities"
	domainerrors "github.com/jetstore/store-service/internal/domain/errors"
)

// ReferralRepository implements the referral store on Postgres.
// Parent pointers live on referral_accounts; the append-only downline
// lists live in referral_levels.
type ReferralRepository struct {
	db *sqlx.DB
}

// NewReferralRepository creates a new referral repository
func NewReferralRepository(db *sqlx.DB) *ReferralRepository {
	return &ReferralRepository{db: db}
}

type referralRow struct {
	UserID    int64           `db:"user_id"`
	Parent1   sql.NullInt64   `db:"parent1"`
	Parent2   sql.NullInt64   `db:"parent2"`
	Parent3   sql.NullInt64   `db:"parent3"`
	VolumeRUB decimal.Decimal `db:"volume_rub"`
	EarnedRUB decimal.Decimal `db:"earned_rub"`
	JoinedAt  time.Time       `db:"joined_at"`
}

func nullableID(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}

func (r *ReferralRepository) loadLevels(ctx context.Context, acct *entities.ReferralAccount) error {
	query := `
		SELECT level, user_id
		FROM referral_levels
		WHERE ancestor_id = $1
		ORDER BY added_at ASC
	`

	rows := []struct {
		Level  int   `db:"level"`
		UserID int64 `db:"user_id"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query, acct.UserID); err != nil {
		return fmt.Errorf("failed to load referral levels: %w", err)
	}

	for _, row := range rows {
		switch row.Level {
		case 1:
			acct.Level1 = append(acct.Level1, row.UserID)
		case 2:
			acct.Level2 = append(acct.Level2, row.UserID)
		case 3:
			acct.Level3 = append(acct.Level3, row.UserID)
		}
	}
	return nil
}

// Get retrieves a referral account with its downline lists
func (r *ReferralRepository) Get(ctx context.Context, userID int64) (*entities.ReferralAccount, error) {
	query := `
		SELECT user_id, parent1, parent2, parent3, volume_rub, earned_rub, joined_at
		FROM referral_accounts
		WHERE user_id = $1
	`

	var row referralRow
	err := r.db.GetContext(ctx, &row, query, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainerrors.NotFoundError("referral account")
		}
		return nil, fmt.Errorf("failed to get referral account: %w", err)
	}

	acct := &entities.ReferralAccount{
		UserID:    row.UserID,
		Parent1:   nullableID(row.Parent1),
		Parent2:   nullableID(row.Parent2),
		Parent3:   nullableID(row.Parent3),
		VolumeRUB: row.VolumeRUB,
		EarnedRUB: row.EarnedRUB,
		JoinedAt:  row.JoinedAt,
	}
	if err := r.loadLevels(ctx, acct); err != nil {
		return nil, err
	}
	return acct, nil
}

// GetOrCreate retrieves an account, inserting an empty one if missing
func (r *ReferralRepository) GetOrCreate(ctx context.Context, userID int64) (*entities.ReferralAccount, error) {
	query := `
		INSERT INTO referral_accounts (user_id, volume_rub, earned_rub, joined_at)
		VALUES ($1, 0, 0, $2)
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, userID, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("failed to create referral account: %w", err)
	}
	return r.Get(ctx, userID)
}

// AttachParents sets the parent chain only for an unattributed account.
// First attribution wins; the conditional update makes repeats no-ops.
func (r *ReferralRepository) AttachParents(ctx context.Context, userID int64, p1, p2, p3 *int64) (bool, error) {
	query := `
		UPDATE referral_accounts
		SET parent1 = $2, parent2 = $3, parent3 = $4
		WHERE user_id = $1 AND parent1 IS NULL
	`

	res, err := r.db.ExecContext(ctx, query, userID, p1, p2, p3)
	if err != nil {
		return false, fmt.Errorf("failed to attach referral parents: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected == 1, nil
}

// AppendLevel adds a user to an ancestor's downline list
func (r *ReferralRepository) AppendLevel(ctx context.Context, ancestorID int64, level int, userID int64) error {
	query := `
		INSERT INTO referral_levels (ancestor_id, level, user_id, added_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (ancestor_id, level, user_id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, ancestorID, level, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to append referral level: %w", err)
	}
	return nil
}

// Credit adds purchase volume and commission earnings to an ancestor
func (r *ReferralRepository) Credit(ctx context.Context, userID int64, volume, earned decimal.Decimal) error {
	query := `
		UPDATE referral_accounts
		SET volume_rub = volume_rub + $2, earned_rub = earned_rub + $3
		WHERE user_id = $1
	`

	res, err := r.db.ExecContext(ctx, query, userID, volume, earned)
	if err != nil {
		return fmt.Errorf("failed to credit referral account: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return domainerrors.NotFoundError("referral account")
	}
	return nil
}

// DebitEarned subtracts a withdrawal when the balance covers it
func (r *ReferralRepository) DebitEarned(ctx context.Context, userID int64, amount decimal.Decimal) (bool, error) {
	query := `
		UPDATE referral_accounts
		SET earned_rub = earned_rub - $2
		WHERE user_id = $1 AND earned_rub >= $2
	`

	res, err := r.db.ExecContext(ctx, query, userID, amount)
	if err != nil {
		return false, fmt.Errorf("failed to debit referral earnings: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected == 1, nil
}

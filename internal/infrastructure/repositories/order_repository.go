package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	domainerrors "github.com/jetstore/store-service/internal/domain/errors"

	"github.com/jetstore/store-service/internal/domain/entities"
	"github.com/jetstore/store-service/internal/infrastructure/database"
)

// OrderRepository implements the order store on Postgres. The
// MarkDelivered conditional update is the single source of truth for
// exactly-once fulfillment.
type OrderRepository struct {
	db *sqlx.DB
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *sqlx.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

type orderRow struct {
	ID             string          `db:"id"`
	Provider       string          `db:"provider"`
	UserID         int64           `db:"user_id"`
	Kind           string          `db:"kind"`
	Recipient      string          `db:"recipient"`
	Quantity       int             `db:"quantity"`
	Months         int             `db:"months"`
	AmountRUB      decimal.Decimal `db:"amount_rub"`
	BaseRUB        decimal.Decimal `db:"base_rub"`
	ChargedRUB     decimal.Decimal `db:"charged_rub"`
	PaymentMethod  int             `db:"payment_method"`
	ExpectedNano   int64           `db:"expected_nano"`
	PayURL         string          `db:"pay_url"`
	CreatedAt      time.Time       `db:"created_at"`
	Delivered      bool            `db:"delivered"`
	DeliveredAt    sql.NullTime    `db:"delivered_at"`
	DeliveryResult sql.NullString  `db:"delivery_result"`
}

func (row *orderRow) toEntity() *entities.Order {
	order := &entities.Order{
		ID:       row.ID,
		Provider: entities.Provider(row.Provider),
		UserID:   row.UserID,
		Purchase: entities.Purchase{
			Kind:      entities.PurchaseKind(row.Kind),
			Recipient: row.Recipient,
			Quantity:  row.Quantity,
			Months:    row.Months,
			AmountRUB: row.AmountRUB,
		},
		BaseRUB:       row.BaseRUB,
		ChargedRUB:    row.ChargedRUB,
		PaymentMethod: row.PaymentMethod,
		ExpectedNano:  row.ExpectedNano,
		PayURL:        row.PayURL,
		CreatedAt:     row.CreatedAt,
		Delivered:     row.Delivered,
	}
	if row.DeliveredAt.Valid {
		t := row.DeliveredAt.Time
		order.DeliveredAt = &t
	}
	if row.DeliveryResult.Valid {
		order.DeliveryResult = row.DeliveryResult.String
	}
	return order
}

const orderColumns = `
	id, provider, user_id, kind, recipient, quantity, months,
	amount_rub, base_rub, charged_rub, payment_method, expected_nano,
	pay_url, created_at, delivered, delivered_at, delivery_result
`

// Put inserts a new order
func (r *OrderRepository) Put(ctx context.Context, order *entities.Order) error {
	query := `
		INSERT INTO orders (
			id, provider, user_id, kind, recipient, quantity, months,
			amount_rub, base_rub, charged_rub, payment_method,
			expected_nano, pay_url, created_at, delivered
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, false
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		order.ID,
		order.Provider,
		order.UserID,
		order.Purchase.Kind,
		order.Purchase.Recipient,
		order.Purchase.Quantity,
		order.Purchase.Months,
		order.Purchase.AmountRUB,
		order.BaseRUB,
		order.ChargedRUB,
		order.PaymentMethod,
		order.ExpectedNano,
		order.PayURL,
		order.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	return nil
}

// Get retrieves an order by provider and id
func (r *OrderRepository) Get(ctx context.Context, provider entities.Provider, id string) (*entities.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE provider = $1 AND id = $2`

	var row orderRow
	err := r.db.GetContext(ctx, &row, query, provider, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainerrors.NotFoundError("order")
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	return row.toEntity(), nil
}

// ListUndelivered returns undelivered orders created within the window
func (r *OrderRepository) ListUndelivered(ctx context.Context, oldest, newest time.Time) ([]*entities.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE delivered = false AND created_at BETWEEN $1 AND $2
		ORDER BY created_at ASC
	`

	var rows []orderRow
	if err := r.db.SelectContext(ctx, &rows, query, oldest, newest); err != nil {
		return nil, fmt.Errorf("failed to list undelivered orders: %w", err)
	}

	orders := make([]*entities.Order, 0, len(rows))
	for i := range rows {
		orders = append(orders, rows[i].toEntity())
	}
	return orders, nil
}

// MarkDelivered performs the compare-and-set. The WHERE clause carries
// the at-most-once guarantee: concurrent callers race on the row lock
// and only one sees delivered = false.
func (r *OrderRepository) MarkDelivered(ctx context.Context, provider entities.Provider, id, result string) (bool, error) {
	query := `
		UPDATE orders
		SET delivered = true, delivered_at = $3, delivery_result = $4
		WHERE provider = $1 AND id = $2 AND delivered = false
	`

	res, err := r.db.ExecContext(ctx, query, provider, id, time.Now().UTC(), result)
	if err != nil {
		return false, fmt.Errorf("failed to mark order delivered: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected == 1, nil
}

// ClaimChainEvent inserts the claim; the primary key keeps one owner
// per event. A repeat claim by the owning order still reports true so
// a failed delivery can be retried on the next check.
func (r *OrderRepository) ClaimChainEvent(ctx context.Context, eventID string, provider entities.Provider, orderID string) (bool, error) {
	insert := `
		INSERT INTO chain_events (event_id, provider, order_id, claimed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id) DO NOTHING
	`

	var claimed bool
	err := database.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, insert, eventID, provider, orderID, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to claim chain event: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read rows affected: %w", err)
		}
		if affected == 1 {
			claimed = true
			return nil
		}

		var owner struct {
			Provider string `db:"provider"`
			OrderID  string `db:"order_id"`
		}
		query := `SELECT provider, order_id FROM chain_events WHERE event_id = $1`
		if err := tx.GetContext(ctx, &owner, query, eventID); err != nil {
			return fmt.Errorf("failed to read chain event owner: %w", err)
		}
		claimed = owner.Provider == string(provider) && owner.OrderID == orderID
		return nil
	})
	if err != nil {
		return false, err
	}
	return claimed, nil
}

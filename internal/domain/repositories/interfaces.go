// Package repositories defines the storage contracts consumed by the
// domain services. Implementations live in
// internal/infrastructure/repositories (Postgres) and
// internal/infrastructure/filestore (atomic JSON files).
package repositories

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jetstore/store-service/internal/domain/entities"
)

// OrderStore persists per-rail purchase orders.
type OrderStore interface {
	Put(ctx context.Context, order *entities.Order) error
	Get(ctx context.Context, provider entities.Provider, id string) (*entities.Order, error)
	// ListUndelivered returns undelivered orders created inside the
	// [oldest, newest] window, oldest first.
	ListUndelivered(ctx context.Context, oldest, newest time.Time) ([]*entities.Order, error)
	// MarkDelivered flips delivered=false to true atomically and
	// records the delivery result. It returns true for exactly one
	// caller per order; every later call returns false.
	MarkDelivered(ctx context.Context, provider entities.Provider, id, result string) (bool, error)
	// ClaimChainEvent records which order consumed an on-chain
	// transfer event. The first claim wins; re-claiming by the owning
	// order returns true again so a failed delivery stays retryable,
	// while any other order gets false.
	ClaimChainEvent(ctx context.Context, eventID string, provider entities.Provider, orderID string) (bool, error)
}

// ReferralStore persists the 3-level referral graph.
type ReferralStore interface {
	Get(ctx context.Context, userID int64) (*entities.ReferralAccount, error)
	GetOrCreate(ctx context.Context, userID int64) (*entities.ReferralAccount, error)
	// AttachParents sets the parent chain only when parent1 is still
	// unset. Returns false when the user is already attributed.
	AttachParents(ctx context.Context, userID int64, p1, p2, p3 *int64) (bool, error)
	AppendLevel(ctx context.Context, ancestorID int64, level int, userID int64) error
	// Credit adds purchase volume and earnings to an ancestor.
	Credit(ctx context.Context, userID int64, volume, earned decimal.Decimal) error
	// DebitEarned subtracts amount when the balance covers it.
	// Returns false on insufficient funds.
	DebitEarned(ctx context.Context, userID int64, amount decimal.Decimal) (bool, error)
}

// RateStore persists admin price-book overrides as key/value pairs.
type RateStore interface {
	Overrides(ctx context.Context) (map[string]string, error)
	SetOverride(ctx context.Context, key, value string) error
}

// SpinStore persists roulette spin balances credited by fulfilled
// spin purchases.
type SpinStore interface {
	CreditSpins(ctx context.Context, userID int64, n int) error
	Spins(ctx context.Context, userID int64) (int, error)
}

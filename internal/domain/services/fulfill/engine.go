// Package fulfill delivers paid purchases exactly once. Delivery runs
// first; the delivered flag is flipped with an atomic compare-and-set,
// and referral credit is granted only by the caller that wins the flip.
// Both the push (webhook) and pull (poll/reconcile) confirmation paths
// funnel into Settle, so racing signals cannot double-deliver.
package fulfill

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/jetstore/store-service/internal/adapters/fragment"
	"github.com/jetstore/store-service/internal/adapters/tonwallet"
	"github.com/jetstore/store-service/internal/domain/entities"
	domainerrors "github.com/jetstore/store-service/internal/domain/errors"
	"github.com/jetstore/store-service/internal/domain/repositories"
	"github.com/jetstore/store-service/pkg/logger"
	"github.com/jetstore/store-service/pkg/metrics"
)

// GiftMarket resolves recipients and opens purchases on the gift
// marketplace.
type GiftMarket interface {
	ResolveStarsRecipient(ctx context.Context, username string, quantity int) (string, error)
	BuyStarsInstruction(ctx context.Context, recipient string, quantity int) (*fragment.PayInstruction, error)
	ResolvePremiumRecipient(ctx context.Context, username string, months int) (string, error)
	GiftPremiumInstruction(ctx context.Context, recipient string, months int) (*fragment.PayInstruction, error)
}

// Wallet executes on-chain payments from the custodial merchant wallet.
type Wallet interface {
	BalanceNano(ctx context.Context) (int64, error)
	Transfer(ctx context.Context, address string, amountNano int64, payloadB64 string) (string, error)
}

// OperatorNotifier reaches the operator chat for manual tasks.
type OperatorNotifier interface {
	NotifyOperators(ctx context.Context, text string) error
}

// ReferralCrediter credits the buyer's ancestor chain after a delivery.
type ReferralCrediter interface {
	CreditPurchase(ctx context.Context, userID int64, amountRUB decimal.Decimal) error
}

// Engine owns the settle path for confirmed orders.
type Engine struct {
	store    repositories.OrderStore
	spins    repositories.SpinStore
	market   GiftMarket
	wallet   Wallet
	notifier OperatorNotifier
	referral ReferralCrediter
	metrics  *metrics.Metrics
	logger   *logger.Logger

	// locks serializes concurrent settle attempts per order so only
	// one of them performs the (non-idempotent) external delivery.
	locks sync.Map
}

// NewEngine creates the fulfillment engine. market and wallet may be
// nil when the gift flow is unconfigured; stars/premium orders then
// fail delivery instead of panicking.
func NewEngine(
	store repositories.OrderStore,
	spins repositories.SpinStore,
	market GiftMarket,
	wallet Wallet,
	notifier OperatorNotifier,
	referral ReferralCrediter,
	m *metrics.Metrics,
	log *logger.Logger,
) *Engine {
	return &Engine{
		store:    store,
		spins:    spins,
		market:   market,
		wallet:   wallet,
		notifier: notifier,
		referral: referral,
		metrics:  m,
		logger:   log,
	}
}

// Settle delivers the order's purchase and marks it delivered. It is
// idempotent: once any call has won the delivered flag, later calls
// return the recorded order without side effects.
func (e *Engine) Settle(ctx context.Context, provider entities.Provider, orderID string) (*entities.Order, error) {
	key := string(provider) + ":" + orderID
	muIface, _ := e.locks.LoadOrStore(key, &sync.Mutex{})
	mu := muIface.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	order, err := e.store.Get(ctx, provider, orderID)
	if err != nil {
		return nil, err
	}
	if order.Delivered {
		return order, nil
	}

	result, err := e.deliver(ctx, order)
	if err != nil {
		e.metrics.Deliveries.WithLabelValues(string(order.Purchase.Kind), "failed").Inc()
		e.logger.Error("Delivery failed",
			"provider", order.Provider,
			"order_id", order.ID,
			"kind", order.Purchase.Kind,
			"error", err,
		)
		return nil, err
	}

	won, err := e.store.MarkDelivered(ctx, provider, orderID, result)
	if err != nil {
		return nil, domainerrors.Wrap(err, "failed to mark order delivered")
	}
	if !won {
		// A racing signal finished first between our Get and the flip.
		e.logger.Warn("Delivery race lost after external call",
			"provider", order.Provider, "order_id", order.ID)
		return e.store.Get(ctx, provider, orderID)
	}

	e.metrics.Deliveries.WithLabelValues(string(order.Purchase.Kind), "delivered").Inc()
	e.logger.Info("Order delivered",
		"provider", order.Provider,
		"order_id", order.ID,
		"kind", order.Purchase.Kind,
		"result", result,
	)

	e.creditReferrals(ctx, order)

	return e.store.Get(ctx, provider, orderID)
}

// creditReferrals runs only on the CAS winner. Credits accrue on the
// pre-commission base, not the charged total. Credit failures are
// logged but never fail the settled order.
func (e *Engine) creditReferrals(ctx context.Context, order *entities.Order) {
	if e.referral == nil {
		return
	}
	if err := e.referral.CreditPurchase(ctx, order.UserID, order.BaseRUB); err != nil {
		e.logger.Error("Referral credit failed",
			"user_id", order.UserID,
			"order_id", order.ID,
			"error", err,
		)
		return
	}
	e.metrics.ReferralCredits.Inc()
}

func (e *Engine) deliver(ctx context.Context, order *entities.Order) (string, error) {
	switch order.Purchase.Kind {
	case entities.KindStars:
		return e.deliverStars(ctx, order)
	case entities.KindPremium:
		return e.deliverPremium(ctx, order)
	case entities.KindTopup:
		return e.deliverTopup(ctx, order)
	case entities.KindSpin:
		return e.deliverSpins(ctx, order)
	}
	return "", domainerrors.DeliveryError(string(order.Purchase.Kind), fmt.Errorf("unknown purchase kind"))
}

func (e *Engine) deliverStars(ctx context.Context, order *entities.Order) (string, error) {
	if e.market == nil || e.wallet == nil {
		return "", domainerrors.DeliveryError("stars", fmt.Errorf("gift flow not configured"))
	}

	recipient, err := e.market.ResolveStarsRecipient(ctx, order.Purchase.Recipient, order.Purchase.Quantity)
	if err != nil {
		return "", domainerrors.DeliveryError("stars", err)
	}
	instruction, err := e.market.BuyStarsInstruction(ctx, recipient, order.Purchase.Quantity)
	if err != nil {
		return "", domainerrors.DeliveryError("stars", err)
	}
	return e.payInstruction(ctx, "stars", instruction)
}

func (e *Engine) deliverPremium(ctx context.Context, order *entities.Order) (string, error) {
	if e.market == nil || e.wallet == nil {
		return "", domainerrors.DeliveryError("premium", fmt.Errorf("gift flow not configured"))
	}

	recipient, err := e.market.ResolvePremiumRecipient(ctx, order.Purchase.Recipient, order.Purchase.Months)
	if err != nil {
		return "", domainerrors.DeliveryError("premium", err)
	}
	instruction, err := e.market.GiftPremiumInstruction(ctx, recipient, order.Purchase.Months)
	if err != nil {
		return "", domainerrors.DeliveryError("premium", err)
	}
	return e.payInstruction(ctx, "premium", instruction)
}

// payInstruction executes the marketplace payment message from the
// custodial wallet after checking the balance covers it plus fees.
func (e *Engine) payInstruction(ctx context.Context, kind string, instruction *fragment.PayInstruction) (string, error) {
	balance, err := e.wallet.BalanceNano(ctx)
	if err != nil {
		return "", domainerrors.DeliveryError(kind, err)
	}
	if balance < instruction.AmountNano+tonwallet.FeeBufferNano {
		return "", domainerrors.DeliveryError(kind,
			fmt.Errorf("wallet balance %d nanoton below required %d", balance, instruction.AmountNano+tonwallet.FeeBufferNano))
	}

	txHash, err := e.wallet.Transfer(ctx, instruction.Address, instruction.AmountNano, instruction.PayloadB64)
	if err != nil {
		return "", domainerrors.DeliveryError(kind, err)
	}
	return "tx:" + txHash, nil
}

// deliverTopup hands stars wallet top-ups to operators; there is no
// programmatic rail for them.
func (e *Engine) deliverTopup(ctx context.Context, order *entities.Order) (string, error) {
	if e.notifier == nil {
		return "", domainerrors.DeliveryError("topup", fmt.Errorf("operator channel not configured"))
	}

	text := fmt.Sprintf(
		"Top-up task\nOrder: %s/%s\nUser: %d\nRecipient: @%s\nAmount: %s RUB",
		order.Provider, order.ID, order.UserID, order.Purchase.Recipient, order.Purchase.AmountRUB.StringFixed(2),
	)
	if err := e.notifier.NotifyOperators(ctx, text); err != nil {
		return "", domainerrors.DeliveryError("topup", err)
	}
	return "operator_task", nil
}

func (e *Engine) deliverSpins(ctx context.Context, order *entities.Order) (string, error) {
	if err := e.spins.CreditSpins(ctx, order.UserID, order.Purchase.Quantity); err != nil {
		return "", domainerrors.DeliveryError("spin", err)
	}
	return fmt.Sprintf("spins:%d", order.Purchase.Quantity), nil
}

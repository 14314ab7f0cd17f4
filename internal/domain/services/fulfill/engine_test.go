package fulfill

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jetstore/store-service/internal/adapters/fragment"
	"github.com/jetstore/store-service/internal/domain/entities"
	"github.com/jetstore/store-service/internal/infrastructure/filestore"
	"github.com/jetstore/store-service/pkg/logger"
	"github.com/jetstore/store-service/pkg/metrics"
)

type fakeMarket struct {
	resolveErr error
	buyErr     error
}

func (m *fakeMarket) ResolveStarsRecipient(ctx context.Context, username string, quantity int) (string, error) {
	if m.resolveErr != nil {
		return "", m.resolveErr
	}
	return "recipient:" + username, nil
}

func (m *fakeMarket) BuyStarsInstruction(ctx context.Context, recipient string, quantity int) (*fragment.PayInstruction, error) {
	if m.buyErr != nil {
		return nil, m.buyErr
	}
	return &fragment.PayInstruction{Address: "EQmarket", AmountNano: 1_000_000_000, PayloadB64: "cGF5"}, nil
}

func (m *fakeMarket) ResolvePremiumRecipient(ctx context.Context, username string, months int) (string, error) {
	return "recipient:" + username, nil
}

func (m *fakeMarket) GiftPremiumInstruction(ctx context.Context, recipient string, months int) (*fragment.PayInstruction, error) {
	return &fragment.PayInstruction{Address: "EQmarket", AmountNano: 2_000_000_000, PayloadB64: "cGF5"}, nil
}

type fakeWallet struct {
	balanceNano int64
	transferErr error
	transfers   atomic.Int64
}

func (w *fakeWallet) BalanceNano(ctx context.Context) (int64, error) {
	return w.balanceNano, nil
}

func (w *fakeWallet) Transfer(ctx context.Context, address string, amountNano int64, payloadB64 string) (string, error) {
	if w.transferErr != nil {
		return "", w.transferErr
	}
	w.transfers.Add(1)
	return "abc123", nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *fakeNotifier) NotifyOperators(ctx context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, text)
	return nil
}

type fakeReferral struct {
	err     error
	credits atomic.Int64

	mu         sync.Mutex
	lastAmount decimal.Decimal
}

func (r *fakeReferral) CreditPurchase(ctx context.Context, userID int64, amountRUB decimal.Decimal) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	r.lastAmount = amountRUB
	r.mu.Unlock()
	r.credits.Add(1)
	return nil
}

func (r *fakeReferral) creditedAmount() decimal.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastAmount
}

type engineFixture struct {
	engine   *Engine
	store    *filestore.OrderStore
	spins    *filestore.SpinStore
	market   *fakeMarket
	wallet   *fakeWallet
	notifier *fakeNotifier
	referral *fakeReferral
}

func newFixture(t *testing.T) *engineFixture {
	t.Helper()
	dir := t.TempDir()
	f := &engineFixture{
		store:    filestore.NewOrderStore(dir),
		spins:    filestore.NewSpinStore(dir),
		market:   &fakeMarket{},
		wallet:   &fakeWallet{balanceNano: 10_000_000_000},
		notifier: &fakeNotifier{},
		referral: &fakeReferral{},
	}
	f.engine = NewEngine(
		f.store, f.spins, f.market, f.wallet, f.notifier, f.referral,
		metrics.New(prometheus.NewRegistry()), logger.NewNop(),
	)
	return f
}

func (f *engineFixture) putOrder(t *testing.T, order *entities.Order) {
	t.Helper()
	require.NoError(t, f.store.Put(context.Background(), order))
}

func starsOrder(id string) *entities.Order {
	return &entities.Order{
		ID:       id,
		Provider: entities.ProviderCryptoPay,
		UserID:   42,
		Purchase: entities.Purchase{
			Kind:      entities.KindStars,
			Recipient: "alice",
			Quantity:  500,
		},
		BaseRUB:    decimal.NewFromInt(685),
		ChargedRUB: decimal.RequireFromString("712.40"),
		CreatedAt:  time.Now().UTC(),
	}
}

func TestSettleDeliversStarsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.putOrder(t, starsOrder("inv-1"))

	order, err := f.engine.Settle(ctx, entities.ProviderCryptoPay, "inv-1")
	require.NoError(t, err)
	assert.True(t, order.Delivered)
	assert.Equal(t, "tx:abc123", order.DeliveryResult)
	assert.Equal(t, int64(1), f.wallet.transfers.Load())
	assert.Equal(t, int64(1), f.referral.credits.Load())

	// A second confirmation signal must be a no-op.
	order, err = f.engine.Settle(ctx, entities.ProviderCryptoPay, "inv-1")
	require.NoError(t, err)
	assert.True(t, order.Delivered)
	assert.Equal(t, int64(1), f.wallet.transfers.Load(), "no second transfer")
	assert.Equal(t, int64(1), f.referral.credits.Load(), "no second referral credit")
}

func TestSettleCreditsBasePriceNotChargedTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	// 685 base charged at 712.40 with the 4% SBP commission: the
	// referral chain earns from the 685, never the 712.40.
	f.putOrder(t, starsOrder("inv-1"))

	_, err := f.engine.Settle(ctx, entities.ProviderCryptoPay, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, "685.00", f.referral.creditedAmount().StringFixed(2))
}

func TestSettleConcurrentSignals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.putOrder(t, starsOrder("inv-1"))

	const signals = 8
	var wg sync.WaitGroup
	for i := 0; i < signals; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Settle(ctx, entities.ProviderCryptoPay, "inv-1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), f.wallet.transfers.Load(), "webhook and poll racing must deliver once")
	assert.Equal(t, int64(1), f.referral.credits.Load())
}

func TestSettleFailedDeliveryLeavesOrderRetryable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.putOrder(t, starsOrder("inv-1"))
	f.market.buyErr = errors.New("marketplace timeout")

	_, err := f.engine.Settle(ctx, entities.ProviderCryptoPay, "inv-1")
	require.Error(t, err)
	assert.Equal(t, int64(0), f.referral.credits.Load())

	order, err := f.store.Get(ctx, entities.ProviderCryptoPay, "inv-1")
	require.NoError(t, err)
	assert.False(t, order.Delivered, "failed delivery must not flip the flag")

	// Once the marketplace recovers, a retry settles normally.
	f.market.buyErr = nil
	order, err = f.engine.Settle(ctx, entities.ProviderCryptoPay, "inv-1")
	require.NoError(t, err)
	assert.True(t, order.Delivered)
	assert.Equal(t, int64(1), f.referral.credits.Load())
}

func TestSettleInsufficientWalletBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.putOrder(t, starsOrder("inv-1"))
	f.wallet.balanceNano = 1_000_000_000 // equals the price, misses the fee buffer

	_, err := f.engine.Settle(ctx, entities.ProviderCryptoPay, "inv-1")
	require.Error(t, err)
	assert.Equal(t, int64(0), f.wallet.transfers.Load())
}

func TestSettleReferralFailureDoesNotFailOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.putOrder(t, starsOrder("inv-1"))
	f.referral.err = errors.New("ledger unavailable")

	order, err := f.engine.Settle(ctx, entities.ProviderCryptoPay, "inv-1")
	require.NoError(t, err)
	assert.True(t, order.Delivered)
}

func TestSettleTopup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.putOrder(t, &entities.Order{
		ID:       "tx-9",
		Provider: entities.ProviderPlatega,
		UserID:   7,
		Purchase: entities.Purchase{
			Kind:      entities.KindTopup,
			Recipient: "bob",
			AmountRUB: decimal.NewFromInt(1000),
		},
		BaseRUB:    decimal.NewFromInt(1060),
		ChargedRUB: decimal.NewFromInt(1060),
		CreatedAt:  time.Now().UTC(),
	})

	order, err := f.engine.Settle(ctx, entities.ProviderPlatega, "tx-9")
	require.NoError(t, err)
	assert.Equal(t, "operator_task", order.DeliveryResult)
	require.Len(t, f.notifier.messages, 1)
	assert.Contains(t, f.notifier.messages[0], "@bob")
	assert.Contains(t, f.notifier.messages[0], "1000.00 RUB")
}

func TestSettleSpins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.putOrder(t, &entities.Order{
		ID:       "inv-5",
		Provider: entities.ProviderCryptoPay,
		UserID:   7,
		Purchase: entities.Purchase{
			Kind:     entities.KindSpin,
			Quantity: 3,
		},
		BaseRUB:    decimal.NewFromInt(300),
		ChargedRUB: decimal.NewFromInt(300),
		CreatedAt:  time.Now().UTC(),
	})

	order, err := f.engine.Settle(ctx, entities.ProviderCryptoPay, "inv-5")
	require.NoError(t, err)
	assert.Equal(t, "spins:3", order.DeliveryResult)

	spins, err := f.spins.Spins(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 3, spins)
}

func TestSettleUnconfiguredGiftFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.putOrder(t, starsOrder("inv-1"))
	f.engine = NewEngine(
		f.store, f.spins, nil, nil, f.notifier, f.referral,
		metrics.New(prometheus.NewRegistry()), logger.NewNop(),
	)

	_, err := f.engine.Settle(ctx, entities.ProviderCryptoPay, "inv-1")
	require.Error(t, err)

	order, err := f.store.Get(ctx, entities.ProviderCryptoPay, "inv-1")
	require.NoError(t, err)
	assert.False(t, order.Delivered)
}

func TestSettleUnknownOrder(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Settle(context.Background(), entities.ProviderCryptoPay, "missing")
	assert.Error(t, err)
}

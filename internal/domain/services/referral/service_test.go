package referral

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jetstore/store-service/internal/domain/entities"
	domainerrors "github.com/jetstore/store-service/internal/domain/errors"
	"github.com/jetstore/store-service/internal/domain/repositories"
	"github.com/jetstore/store-service/internal/domain/services/rates"
	"github.com/jetstore/store-service/internal/infrastructure/filestore"
	"github.com/jetstore/store-service/pkg/logger"
)

type stubRateStore struct{ overrides map[string]string }

func (s *stubRateStore) Overrides(ctx context.Context) (map[string]string, error) {
	if s.overrides == nil {
		return map[string]string{}, nil
	}
	return s.overrides, nil
}

func (s *stubRateStore) SetOverride(ctx context.Context, key, value string) error { return nil }

type fakeNotifier struct {
	messages []string
	fail     bool
}

func (n *fakeNotifier) NotifyOperators(ctx context.Context, text string) error {
	if n.fail {
		return errors.New("telegram down")
	}
	n.messages = append(n.messages, text)
	return nil
}

func (n *fakeNotifier) BotUsername() string { return "jetstore_bot" }

func newService(t *testing.T) (*Service, *filestore.ReferralStore, *fakeNotifier) {
	t.Helper()
	store := filestore.NewReferralStore(t.TempDir())
	rateService := rates.NewService([]repositories.RateStore{&stubRateStore{}}, nil, nil, time.Minute, logger.NewNop())
	notifier := &fakeNotifier{}
	return NewService(store, rateService, notifier, logger.NewNop()), store, notifier
}

func TestAttachBuildsThreeLevelChain(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	// 1 invites 2, 2 invites 3, 3 invites 4.
	require.NoError(t, svc.Attach(ctx, 2, 1))
	require.NoError(t, svc.Attach(ctx, 3, 2))
	require.NoError(t, svc.Attach(ctx, 4, 3))

	account, err := store.Get(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 2, 1}, account.Parents())

	root, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, root.Level1)
	assert.Equal(t, []int64{3}, root.Level2)
	assert.Equal(t, []int64{4}, root.Level3)
}

func TestAttachFirstInviterWins(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.Attach(ctx, 2, 1))
	require.NoError(t, svc.Attach(ctx, 2, 99))

	account, err := store.Get(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, account.Parents())

	late, err := store.Get(ctx, 99)
	require.NoError(t, err)
	assert.Empty(t, late.Level1, "losing inviter must not gain a downline entry")
}

func TestAttachRejectsSelfReferral(t *testing.T) {
	svc, _, _ := newService(t)

	err := svc.Attach(context.Background(), 7, 7)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domainerrors.ErrSelfReferral))
}

func TestCreditPurchaseSpreadsOverChain(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.Attach(ctx, 2, 1))
	require.NoError(t, svc.Attach(ctx, 3, 2))
	require.NoError(t, svc.Attach(ctx, 4, 3))

	require.NoError(t, svc.CreditPurchase(ctx, 4, decimal.NewFromInt(1000)))

	wantEarned := map[int64]string{
		3: "40.00",  // level 1, 4%
		2: "80.00",  // level 2, 8%
		1: "120.00", // level 3, 12%
	}
	for userID, want := range wantEarned {
		account, err := store.Get(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, want, account.EarnedRUB.StringFixed(2), "user %d", userID)
		assert.Equal(t, "1000.00", account.VolumeRUB.StringFixed(2), "user %d", userID)
	}
}

func TestCreditPurchaseWithoutAccountIsNoop(t *testing.T) {
	svc, _, _ := newService(t)

	assert.NoError(t, svc.CreditPurchase(context.Background(), 12345, decimal.NewFromInt(500)))
}

func TestCreditPurchaseWithoutParentsIsNoop(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	_, err := store.GetOrCreate(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, svc.CreditPurchase(ctx, 1, decimal.NewFromInt(500)))

	account, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.True(t, account.EarnedRUB.IsZero())
}

func TestStatsTiers(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	stats, err := svc.Stats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, entities.TierBronze, stats.Tier)

	require.NoError(t, store.Credit(ctx, 1, decimal.NewFromInt(50_000), decimal.Zero))
	stats, err = svc.Stats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, entities.TierSilver, stats.Tier)

	require.NoError(t, store.Credit(ctx, 1, decimal.NewFromInt(100_000), decimal.Zero))
	stats, err = svc.Stats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, entities.TierGold, stats.Tier)
}

func TestLink(t *testing.T) {
	svc, _, _ := newService(t)

	assert.Equal(t, "https://t.me/jetstore_bot?start=ref_42", svc.Link(42))
}

func TestWithdraw(t *testing.T) {
	svc, store, notifier := newService(t)
	ctx := context.Background()

	_, err := store.GetOrCreate(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, store.Credit(ctx, 1, decimal.NewFromInt(20_000), decimal.NewFromInt(800)))

	require.NoError(t, svc.Withdraw(ctx, 1, decimal.NewFromInt(600), "card", "2200 7007 1234 5678"))
	require.Len(t, notifier.messages, 1)
	assert.Contains(t, notifier.messages[0], "600.00 RUB")
	assert.Contains(t, notifier.messages[0], "card")
	assert.Contains(t, notifier.messages[0], "2200 7007 1234 5678")

	account, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "200.00", account.EarnedRUB.StringFixed(2))
}

func TestWithdrawBelowMinimum(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	_, err := store.GetOrCreate(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, store.Credit(ctx, 1, decimal.Zero, decimal.NewFromInt(800)))

	err = svc.Withdraw(ctx, 1, decimal.NewFromInt(499), "card", "2200 7007 1234 5678")
	assert.True(t, domainerrors.IsInvalidInput(err))
}

func TestWithdrawRequiresPayoutDestination(t *testing.T) {
	svc, store, notifier := newService(t)
	ctx := context.Background()

	_, err := store.GetOrCreate(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, store.Credit(ctx, 1, decimal.Zero, decimal.NewFromInt(800)))

	err = svc.Withdraw(ctx, 1, decimal.NewFromInt(600), "", "2200 7007 1234 5678")
	assert.True(t, domainerrors.IsInvalidInput(err))

	err = svc.Withdraw(ctx, 1, decimal.NewFromInt(600), "card", "")
	assert.True(t, domainerrors.IsInvalidInput(err))

	assert.Empty(t, notifier.messages)
	account, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "800.00", account.EarnedRUB.StringFixed(2), "rejected withdrawal must not debit")
}

func TestWithdrawInsufficientFunds(t *testing.T) {
	svc, store, notifier := newService(t)
	ctx := context.Background()

	_, err := store.GetOrCreate(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, store.Credit(ctx, 1, decimal.Zero, decimal.NewFromInt(500)))

	err = svc.Withdraw(ctx, 1, decimal.NewFromInt(501), "sbp", "+7 900 000 00 00")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domainerrors.ErrInsufficientFunds))
	assert.Empty(t, notifier.messages)

	account, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "500.00", account.EarnedRUB.StringFixed(2), "failed withdrawal must not debit")
}

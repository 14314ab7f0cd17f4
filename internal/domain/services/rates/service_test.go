package rates

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jetstore/store-service/internal/domain/entities"
	domainerrors "github.com/jetstore/store-service/internal/domain/errors"
	"github.com/jetstore/store-service/internal/domain/repositories"
	"github.com/jetstore/store-service/pkg/logger"
)

type memRateStore struct {
	overrides map[string]string
	err       error
}

func (s *memRateStore) Overrides(ctx context.Context) (map[string]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.overrides == nil {
		return map[string]string{}, nil
	}
	return s.overrides, nil
}

func (s *memRateStore) SetOverride(ctx context.Context, key, value string) error {
	if s.err != nil {
		return s.err
	}
	if s.overrides == nil {
		s.overrides = map[string]string{}
	}
	s.overrides[key] = value
	return nil
}

func newTestService(stores ...repositories.RateStore) *Service {
	return NewService(stores, nil, nil, time.Minute, logger.NewNop())
}

func TestResolveDefaults(t *testing.T) {
	svc := newTestService(&memRateStore{})

	rc := svc.Resolve(context.Background())
	assert.Equal(t, "1.37", rc.StarPriceRUB.String())
	assert.Equal(t, "1311", rc.PremiumPricesRUB[6].String())
	assert.Equal(t, "4", rc.ReferralPct[0].String())
	assert.Equal(t, "8", rc.ReferralPct[1].String())
	assert.Equal(t, "12", rc.ReferralPct[2].String())
	assert.Equal(t, "500", rc.MinWithdrawRUB.String())
}

func TestResolveAppliesOverrides(t *testing.T) {
	svc := newTestService(&memRateStore{overrides: map[string]string{
		KeyStarPriceRUB:          "1.5",
		"premium_price_6":        "1200",
		"commission_platega_sbp": "6",
	}})

	rc := svc.Resolve(context.Background())
	assert.Equal(t, "1.5", rc.StarPriceRUB.String())
	assert.Equal(t, "1200", rc.PremiumPricesRUB[6].String())
	assert.Equal(t, "6", rc.CommissionPct[entities.CommissionPlategaSBP].String())
	// Untouched keys keep their defaults.
	assert.Equal(t, "983", rc.PremiumPricesRUB[3].String())
}

func TestResolveSkipsMalformedOverride(t *testing.T) {
	svc := newTestService(&memRateStore{overrides: map[string]string{
		KeyStarPriceRUB: "not-a-number",
	}})

	rc := svc.Resolve(context.Background())
	assert.Equal(t, "1.37", rc.StarPriceRUB.String())
}

func TestResolveDegradesToDefaultsOnStoreError(t *testing.T) {
	svc := newTestService(&memRateStore{err: errors.New("disk gone")})

	rc := svc.Resolve(context.Background())
	assert.Equal(t, "1.37", rc.StarPriceRUB.String())
}

func TestResolveChainPrecedence(t *testing.T) {
	// Database layer first, the local rate file beneath it.
	primary := &memRateStore{overrides: map[string]string{
		KeyStarPriceRUB: "1.6",
	}}
	secondary := &memRateStore{overrides: map[string]string{
		KeyStarPriceRUB: "1.5",
		KeySpinPriceRUB: "150",
	}}
	svc := newTestService(primary, secondary)

	rc := svc.Resolve(context.Background())
	assert.Equal(t, "1.6", rc.StarPriceRUB.String(), "first store wins on conflicts")
	assert.Equal(t, "150", rc.SpinPriceRUB.String(), "lower layers fill unset keys")

	merged, err := svc.Overrides(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.6", merged[KeyStarPriceRUB])
	assert.Equal(t, "150", merged[KeySpinPriceRUB])
}

func TestResolveChainDegradesPastFailingStore(t *testing.T) {
	primary := &memRateStore{err: errors.New("database down")}
	secondary := &memRateStore{overrides: map[string]string{
		KeyStarPriceRUB: "1.5",
	}}
	svc := newTestService(primary, secondary)

	rc := svc.Resolve(context.Background())
	assert.Equal(t, "1.5", rc.StarPriceRUB.String(), "lower layer still applies")
}

func TestSetOverrideWritesPrimaryStore(t *testing.T) {
	primary := &memRateStore{}
	secondary := &memRateStore{}
	svc := newTestService(primary, secondary)

	require.NoError(t, svc.SetOverride(context.Background(), KeyStarPriceRUB, "1.7"))
	assert.Equal(t, "1.7", primary.overrides[KeyStarPriceRUB])
	assert.Empty(t, secondary.overrides)
}

func TestSetOverride(t *testing.T) {
	store := &memRateStore{}
	svc := newTestService(store)
	ctx := context.Background()

	require.NoError(t, svc.SetOverride(ctx, KeyStarPriceRUB, "1.45"))
	assert.Equal(t, "1.45", store.overrides[KeyStarPriceRUB])

	assert.True(t, domainerrors.IsInvalidInput(svc.SetOverride(ctx, "no_such_key", "1")))
	assert.True(t, domainerrors.IsInvalidInput(svc.SetOverride(ctx, KeyStarPriceRUB, "abc")))
	assert.True(t, domainerrors.IsInvalidInput(svc.SetOverride(ctx, KeyStarPriceRUB, "-1")))
}

func TestTONRateFallsBack(t *testing.T) {
	// No feed and no cache configured: the resolved fallback applies.
	svc := newTestService(&memRateStore{})

	rate := svc.TONRateRUB(context.Background())
	assert.Equal(t, "600", rate.String())
}

func TestTONRateUsesOverriddenFallback(t *testing.T) {
	svc := newTestService(&memRateStore{overrides: map[string]string{
		KeyTONFallbackRUB: "720",
	}})

	rate := svc.TONRateRUB(context.Background())
	assert.Equal(t, "720", rate.String())
}

func TestPublicSnapshot(t *testing.T) {
	svc := newTestService(&memRateStore{})

	snapshot := svc.PublicSnapshot(context.Background())
	assert.Equal(t, "1.37", snapshot.StarPriceRUB)
	assert.Equal(t, "1311.00", snapshot.PremiumPricesRUB[6])
	assert.Equal(t, "4", snapshot.CommissionPct[entities.CommissionPlategaSBP])
	assert.Equal(t, "100", snapshot.TopupMinRUB)
	assert.Equal(t, "1000000", snapshot.TopupMaxRUB)
}

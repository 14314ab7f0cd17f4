package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jetstore/store-service/internal/domain/entities"
	domainerrors "github.com/jetstore/store-service/internal/domain/errors"
	"github.com/jetstore/store-service/internal/domain/repositories"
	"github.com/jetstore/store-service/internal/domain/services/rates"
	"github.com/jetstore/store-service/pkg/logger"
)

type stubRateStore struct {
	overrides map[string]string
}

func (s *stubRateStore) Overrides(ctx context.Context) (map[string]string, error) {
	if s.overrides == nil {
		return map[string]string{}, nil
	}
	return s.overrides, nil
}

func (s *stubRateStore) SetOverride(ctx context.Context, key, value string) error {
	if s.overrides == nil {
		s.overrides = map[string]string{}
	}
	s.overrides[key] = value
	return nil
}

func newPricing(overrides map[string]string) *Service {
	rateService := rates.NewService([]repositories.RateStore{&stubRateStore{overrides: overrides}}, nil, nil, time.Minute, logger.NewNop())
	return NewService(rateService)
}

func TestQuoteStars(t *testing.T) {
	svc := newPricing(nil)
	ctx := context.Background()

	tests := []struct {
		name     string
		provider entities.Provider
		method   int
		want     string
	}{
		{"no commission on crypto invoices", entities.ProviderCryptoPay, 0, "685.00"},
		{"sbp adds 4 percent", entities.ProviderPlatega, entities.PlategaMethodSBP, "712.40"},
		{"cards add 8 percent", entities.ProviderPlatega, entities.PlategaMethodCards, "739.80"},
		{"freekassa adds 5 percent", entities.ProviderFreeKassa, 0, "719.25"},
		{"no commission on chain transfers", entities.ProviderTON, 0, "685.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := entities.Purchase{Kind: entities.KindStars, Recipient: "@alice", Quantity: 500}
			quote, err := svc.Quote(ctx, &p, tt.provider, tt.method)
			require.NoError(t, err)
			assert.Equal(t, "685.00", quote.BaseRUB.StringFixed(2))
			assert.Equal(t, tt.want, quote.TotalRUB.StringFixed(2))
		})
	}
}

func TestQuoteStarsBounds(t *testing.T) {
	svc := newPricing(nil)
	ctx := context.Background()

	for _, quantity := range []int{MinStars, MaxStars} {
		p := entities.Purchase{Kind: entities.KindStars, Recipient: "alice", Quantity: quantity}
		_, err := svc.Quote(ctx, &p, entities.ProviderCryptoPay, 0)
		assert.NoError(t, err, "quantity %d", quantity)
	}
	for _, quantity := range []int{0, MinStars - 1, MaxStars + 1} {
		p := entities.Purchase{Kind: entities.KindStars, Recipient: "alice", Quantity: quantity}
		_, err := svc.Quote(ctx, &p, entities.ProviderCryptoPay, 0)
		assert.True(t, domainerrors.IsInvalidInput(err), "quantity %d", quantity)
	}
}

func TestQuotePremium(t *testing.T) {
	svc := newPricing(nil)
	ctx := context.Background()

	p := entities.Purchase{Kind: entities.KindPremium, Recipient: "bob", Months: 6}
	quote, err := svc.Quote(ctx, &p, entities.ProviderCryptoPay, 0)
	require.NoError(t, err)
	assert.Equal(t, "1311.00", quote.TotalRUB.StringFixed(2))

	p = entities.Purchase{Kind: entities.KindPremium, Recipient: "bob", Months: 4}
	_, err = svc.Quote(ctx, &p, entities.ProviderCryptoPay, 0)
	assert.True(t, domainerrors.IsInvalidInput(err))
}

func TestQuoteTopup(t *testing.T) {
	svc := newPricing(nil)
	ctx := context.Background()

	p := entities.Purchase{
		Kind:      entities.KindTopup,
		Recipient: "UQabc",
		AmountRUB: decimal.NewFromInt(1000),
	}
	quote, err := svc.Quote(ctx, &p, entities.ProviderCryptoPay, 0)
	require.NoError(t, err)
	// 1000 * 1.06 markup
	assert.Equal(t, "1060.00", quote.TotalRUB.StringFixed(2))

	p.AmountRUB = decimal.NewFromInt(99)
	_, err = svc.Quote(ctx, &p, entities.ProviderCryptoPay, 0)
	assert.True(t, domainerrors.IsInvalidInput(err))

	p.AmountRUB = decimal.NewFromInt(1_000_001)
	_, err = svc.Quote(ctx, &p, entities.ProviderCryptoPay, 0)
	assert.True(t, domainerrors.IsInvalidInput(err))
}

func TestQuoteSpins(t *testing.T) {
	svc := newPricing(nil)
	ctx := context.Background()

	p := entities.Purchase{Kind: entities.KindSpin, Quantity: 5}
	quote, err := svc.Quote(ctx, &p, entities.ProviderCryptoPay, 0)
	require.NoError(t, err)
	assert.Equal(t, "500.00", quote.TotalRUB.StringFixed(2))

	for _, quantity := range []int{0, MaxSpins + 1} {
		p := entities.Purchase{Kind: entities.KindSpin, Quantity: quantity}
		_, err := svc.Quote(ctx, &p, entities.ProviderCryptoPay, 0)
		assert.True(t, domainerrors.IsInvalidInput(err), "quantity %d", quantity)
	}
}

func TestQuoteUsesOverriddenRates(t *testing.T) {
	svc := newPricing(map[string]string{
		"star_price_rub":         "2",
		"commission_platega_sbp": "10",
	})
	ctx := context.Background()

	p := entities.Purchase{Kind: entities.KindStars, Recipient: "alice", Quantity: 100}
	quote, err := svc.Quote(ctx, &p, entities.ProviderPlatega, entities.PlategaMethodSBP)
	require.NoError(t, err)
	assert.Equal(t, "220.00", quote.TotalRUB.StringFixed(2))
}

func TestNormalizeHandle(t *testing.T) {
	handle, err := NormalizeHandle("@Some_User01")
	require.NoError(t, err)
	assert.Equal(t, "Some_User01", handle)

	handle, err = NormalizeHandle("  plain ")
	require.NoError(t, err)
	assert.Equal(t, "plain", handle)

	for _, bad := range []string{"", "@", "has space", "too@many", "реченька"} {
		_, err := NormalizeHandle(bad)
		assert.Error(t, err, "handle %q", bad)
	}
}

func TestValidateNormalizesRecipientInPlace(t *testing.T) {
	svc := newPricing(nil)

	p := entities.Purchase{Kind: entities.KindStars, Recipient: "@alice", Quantity: 100}
	require.NoError(t, svc.Validate(context.Background(), &p))
	assert.Equal(t, "alice", p.Recipient)
}

func TestNanoFromRUB(t *testing.T) {
	rate := decimal.NewFromInt(600)

	assert.Equal(t, int64(1_000_000_000), NanoFromRUB(decimal.NewFromInt(600), rate))
	assert.Equal(t, int64(500_000_000), NanoFromRUB(decimal.NewFromInt(300), rate))
	assert.Equal(t, int64(0), NanoFromRUB(decimal.NewFromInt(100), decimal.Zero))

	// 712.40 / 600 TON, rounded to whole nanoton
	assert.Equal(t, int64(1_187_333_333), NanoFromRUB(decimal.NewFromFloat(712.40), rate))
}

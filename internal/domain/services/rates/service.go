// Package rates resolves the price book. Resolution layers, lowest to
// highest: compiled defaults, then stored overrides. Resolve runs per
// computation so admin writes apply without a restart.
package rates

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jetstore/store-service/internal/adapters/pricefeed"
	"github.com/jetstore/store-service/internal/domain/entities"
	domainerrors "github.com/jetstore/store-service/internal/domain/errors"
	"github.com/jetstore/store-service/internal/domain/repositories"
	"github.com/jetstore/store-service/internal/infrastructure/cache"
	"github.com/jetstore/store-service/pkg/logger"
)

const tonRateCacheKey = "rates:ton_rub"

// Override keys accepted by SetOverride.
const (
	KeyStarPriceRUB   = "star_price_rub"
	KeyStarBuyRateRUB = "star_buy_rate_rub"
	KeyPremiumPrice3  = "premium_price_3"
	KeyPremiumPrice6  = "premium_price_6"
	KeyPremiumPrice12 = "premium_price_12"
	KeySpinPriceRUB   = "spin_price_rub"
	KeyTopupMarkup    = "topup_markup"
	KeyTONFallbackRUB = "ton_fallback_rub"
	KeyMinWithdrawRUB = "min_withdraw_rub"
	KeyTopupMinRUB    = "topup_min_rub"
	KeyTopupMaxRUB    = "topup_max_rub"
	KeyReferralPct1   = "referral_pct_1"
	KeyReferralPct2   = "referral_pct_2"
	KeyReferralPct3   = "referral_pct_3"
)

func commissionKey(provider string) string { return "commission_" + provider }

var overrideKeys = map[string]bool{
	KeyStarPriceRUB:   true,
	KeyStarBuyRateRUB: true,
	KeyPremiumPrice3:  true,
	KeyPremiumPrice6:  true,
	KeyPremiumPrice12: true,
	KeySpinPriceRUB:   true,
	KeyTopupMarkup:    true,
	KeyTONFallbackRUB: true,
	KeyMinWithdrawRUB: true,
	KeyTopupMinRUB:    true,
	KeyTopupMaxRUB:    true,
	KeyReferralPct1:   true,
	KeyReferralPct2:   true,
	KeyReferralPct3:   true,

	commissionKey(entities.CommissionCryptoPay):    true,
	commissionKey(entities.CommissionPlategaSBP):   true,
	commissionKey(entities.CommissionPlategaCards): true,
	commissionKey(entities.CommissionFreeKassa):    true,
	commissionKey(entities.CommissionTON):          true,
}

// Service resolves rate configuration and live quotes.
type Service struct {
	stores  []repositories.RateStore
	feed    *pricefeed.Client
	cache   cache.RedisClient
	feedTTL time.Duration
	logger  *logger.Logger
}

// NewService creates the rate service. stores are ordered highest
// precedence first (the database before the local rate file); cache
// may be nil.
func NewService(stores []repositories.RateStore, feed *pricefeed.Client, redis cache.RedisClient, feedTTL time.Duration, log *logger.Logger) *Service {
	if feedTTL <= 0 {
		feedTTL = time.Minute
	}
	return &Service{
		stores:  stores,
		feed:    feed,
		cache:   redis,
		feedTTL: feedTTL,
		logger:  log,
	}
}

// Resolve returns the effective price book. Stores apply lowest
// precedence first so earlier stores win; a failing store degrades to
// the layers below it and pricing keeps working.
func (s *Service) Resolve(ctx context.Context) entities.RateConfig {
	rc := entities.DefaultRateConfig()

	for i := len(s.stores) - 1; i >= 0; i-- {
		overrides, err := s.stores[i].Overrides(ctx)
		if err != nil {
			s.logger.Warn("Rate overrides unavailable", "error", err)
			continue
		}
		for key, raw := range overrides {
			value, err := decimal.NewFromString(raw)
			if err != nil {
				s.logger.Warn("Skipping malformed rate override", "key", key, "value", raw)
				continue
			}
			applyOverride(&rc, key, value)
		}
	}
	return rc
}

func applyOverride(rc *entities.RateConfig, key string, value decimal.Decimal) {
	switch key {
	case KeyStarPriceRUB:
		rc.StarPriceRUB = value
	case KeyStarBuyRateRUB:
		rc.StarBuyRateRUB = value
	case KeyPremiumPrice3:
		rc.PremiumPricesRUB[3] = value
	case KeyPremiumPrice6:
		rc.PremiumPricesRUB[6] = value
	case KeyPremiumPrice12:
		rc.PremiumPricesRUB[12] = value
	case KeySpinPriceRUB:
		rc.SpinPriceRUB = value
	case KeyTopupMarkup:
		rc.TopupMarkup = value
	case KeyTONFallbackRUB:
		rc.TONFallbackRUB = value
	case KeyMinWithdrawRUB:
		rc.MinWithdrawRUB = value
	case KeyTopupMinRUB:
		rc.TopupMinRUB = value
	case KeyTopupMaxRUB:
		rc.TopupMaxRUB = value
	case KeyReferralPct1:
		rc.ReferralPct[0] = value
	case KeyReferralPct2:
		rc.ReferralPct[1] = value
	case KeyReferralPct3:
		rc.ReferralPct[2] = value
	default:
		for _, name := range []string{
			entities.CommissionCryptoPay,
			entities.CommissionPlategaSBP,
			entities.CommissionPlategaCards,
			entities.CommissionFreeKassa,
			entities.CommissionTON,
		} {
			if key == commissionKey(name) {
				rc.CommissionPct[name] = value
				return
			}
		}
	}
}

// SetOverride validates and persists one admin override in the
// highest-precedence store.
func (s *Service) SetOverride(ctx context.Context, key, value string) error {
	if !overrideKeys[key] {
		return domainerrors.ValidationError("key", fmt.Sprintf("unknown rate key %q", key))
	}
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		return domainerrors.ValidationError("value", "rate value must be numeric")
	}
	if parsed.IsNegative() {
		return domainerrors.ValidationError("value", "rate value must not be negative")
	}
	if len(s.stores) == 0 {
		return domainerrors.InternalError("no rate store configured", nil)
	}
	if err := s.stores[0].SetOverride(ctx, key, parsed.String()); err != nil {
		return domainerrors.Wrap(err, "failed to persist rate override")
	}
	return nil
}

// TONRateRUB returns the live TON/RUB quote, cached briefly, with the
// configured fallback when the feed is down.
func (s *Service) TONRateRUB(ctx context.Context) decimal.Decimal {
	if s.cache != nil {
		var cached string
		if err := s.cache.Get(ctx, tonRateCacheKey, &cached); err == nil {
			if rate, err := decimal.NewFromString(cached); err == nil && rate.IsPositive() {
				return rate
			}
		}
	}

	if s.feed != nil {
		rate, err := s.feed.TONRateRUB(ctx)
		if err == nil && rate.IsPositive() {
			if s.cache != nil {
				if err := s.cache.Set(ctx, tonRateCacheKey, rate.String(), s.feedTTL); err != nil {
					s.logger.Warn("Failed to cache TON rate", "error", err)
				}
			}
			return rate
		}
		s.logger.Warn("TON rate feed unavailable, using fallback", "error", err)
	}

	return s.Resolve(ctx).TONFallbackRUB
}

// Snapshot is the public price-book projection served by /api/config.
type Snapshot struct {
	StarPriceRUB     string            `json:"star_price_rub"`
	StarBuyRateRUB   string            `json:"star_buy_rate_rub"`
	PremiumPricesRUB map[int]string    `json:"premium_prices_rub"`
	SpinPriceRUB     string            `json:"spin_price_rub"`
	TopupMarkup      string            `json:"topup_markup"`
	CommissionPct    map[string]string `json:"commission_pct"`
	TopupMinRUB      string            `json:"topup_min_rub"`
	TopupMaxRUB      string            `json:"topup_max_rub"`
}

// PublicSnapshot renders the resolved config for clients.
func (s *Service) PublicSnapshot(ctx context.Context) Snapshot {
	rc := s.Resolve(ctx)

	premium := make(map[int]string, len(rc.PremiumPricesRUB))
	for months, price := range rc.PremiumPricesRUB {
		premium[months] = price.StringFixed(2)
	}
	commission := make(map[string]string, len(rc.CommissionPct))
	for name, pct := range rc.CommissionPct {
		commission[name] = pct.String()
	}

	return Snapshot{
		StarPriceRUB:     rc.StarPriceRUB.StringFixed(2),
		StarBuyRateRUB:   rc.StarBuyRateRUB.StringFixed(2),
		PremiumPricesRUB: premium,
		SpinPriceRUB:     rc.SpinPriceRUB.StringFixed(2),
		TopupMarkup:      rc.TopupMarkup.String(),
		CommissionPct:    commission,
		TopupMinRUB:      rc.TopupMinRUB.StringFixed(0),
		TopupMaxRUB:      rc.TopupMaxRUB.StringFixed(0),
	}
}

// Overrides lists the stored admin overrides, merged across the chain
// with higher-precedence stores winning.
func (s *Service) Overrides(ctx context.Context) (map[string]string, error) {
	merged := map[string]string{}
	for i := len(s.stores) - 1; i >= 0; i-- {
		overrides, err := s.stores[i].Overrides(ctx)
		if err != nil {
			return nil, err
		}
		for key, value := range overrides {
			merged[key] = value
		}
	}
	return merged, nil
}

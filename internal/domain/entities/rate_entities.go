package entities

import "github.com/shopspring/decimal"

// RateConfig is the resolved price book. It is re-resolved for every
// price computation so admin overrides apply without restart.
type RateConfig struct {
	StarPriceRUB   decimal.Decimal `json:"star_price_rub"`
	StarBuyRateRUB decimal.Decimal `json:"star_buy_rate_rub"`
	// Premium subscription price in rubles keyed by months (3, 6, 12).
	PremiumPricesRUB map[int]decimal.Decimal `json:"premium_prices_rub"`
	SpinPriceRUB     decimal.Decimal         `json:"spin_price_rub"`
	// TopupMarkup multiplies the requested top-up rubles to cover
	// conversion spread.
	TopupMarkup decimal.Decimal `json:"topup_markup"`
	// Commission percent per provider; platega is split per method.
	CommissionPct map[string]decimal.Decimal `json:"commission_pct"`
	// Referral percents by level, index 0 = level 1.
	ReferralPct [3]decimal.Decimal `json:"referral_pct"`
	// TONFallbackRUB is used when the live price feed is unreachable.
	TONFallbackRUB decimal.Decimal `json:"ton_fallback_rub"`
	MinWithdrawRUB decimal.Decimal `json:"min_withdraw_rub"`
	TopupMinRUB    decimal.Decimal `json:"topup_min_rub"`
	TopupMaxRUB    decimal.Decimal `json:"topup_max_rub"`
}

// Commission keys. Platega carries a distinct rate per method code.
const (
	CommissionCryptoPay    = "cryptopay"
	CommissionPlategaSBP   = "platega_sbp"
	CommissionPlategaCards = "platega_cards"
	CommissionFreeKassa    = "freekassa"
	CommissionTON          = "ton"
)

// DefaultRateConfig returns the compiled price book, the lowest layer
// of the rate resolution stack.
func DefaultRateConfig() RateConfig {
	return RateConfig{
		StarPriceRUB:   decimal.NewFromFloat(1.37),
		StarBuyRateRUB: decimal.NewFromFloat(0.65),
		PremiumPricesRUB: map[int]decimal.Decimal{
			3:  decimal.NewFromInt(983),
			6:  decimal.NewFromInt(1311),
			12: decimal.NewFromInt(2377),
		},
		SpinPriceRUB: decimal.NewFromInt(100),
		TopupMarkup:  decimal.NewFromFloat(1.06),
		CommissionPct: map[string]decimal.Decimal{
			CommissionCryptoPay:    decimal.NewFromInt(0),
			CommissionPlategaSBP:   decimal.NewFromInt(4),
			CommissionPlategaCards: decimal.NewFromInt(8),
			CommissionFreeKassa:    decimal.NewFromInt(5),
			CommissionTON:          decimal.NewFromInt(0),
		},
		ReferralPct: [3]decimal.Decimal{
			decimal.NewFromInt(4),
			decimal.NewFromInt(8),
			decimal.NewFromInt(12),
		},
		TONFallbackRUB: decimal.NewFromFloat(600.0),
		MinWithdrawRUB: decimal.NewFromInt(500),
		TopupMinRUB:    decimal.NewFromInt(100),
		TopupMaxRUB:    decimal.NewFromInt(1000000),
	}
}

// CommissionFor maps a provider and payment method to its commission key.
func (rc RateConfig) CommissionFor(provider Provider, method int) decimal.Decimal {
	key := string(provider)
	if provider == ProviderPlatega {
		if method == PlategaMethodCards {
			key = CommissionPlategaCards
		} else {
			key = CommissionPlategaSBP
		}
	}
	if pct, ok := rc.CommissionPct[key]; ok {
		return pct
	}
	return decimal.Zero
}

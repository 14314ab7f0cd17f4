// Package pricing validates purchase intents and computes charged
// amounts. Prices are derived exclusively from the resolved rate
// config; client-supplied amounts are only ever the top-up input.
package pricing

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jetstore/store-service/internal/domain/entities"
	domainerrors "github.com/jetstore/store-service/internal/domain/errors"
	"github.com/jetstore/store-service/internal/domain/services/rates"
)

// Stars quantity bounds per order.
const (
	MinStars = 50
	MaxStars = 50000
)

// Spin quantity bounds per order.
const (
	MinSpins = 1
	MaxSpins = 100
)

var handleRe = regexp.MustCompile(`^[A-Za-z0-9_]{1,32}$`)

var oneHundred = decimal.NewFromInt(100)

// NormalizeHandle strips a leading @ and validates the recipient
// handle shape.
func NormalizeHandle(raw string) (string, error) {
	handle := strings.TrimPrefix(strings.TrimSpace(raw), "@")
	if !handleRe.MatchString(handle) {
		return "", domainerrors.ValidationError("recipient", "recipient must match [A-Za-z0-9_]{1,32}")
	}
	return handle, nil
}

// Service computes quotes against the live rate config.
type Service struct {
	rates *rates.Service
}

// NewService creates the pricing service.
func NewService(rateService *rates.Service) *Service {
	return &Service{rates: rateService}
}

// Validate checks a purchase payload against the current bounds.
// It normalizes the recipient handle in place for stars and premium.
func (s *Service) Validate(ctx context.Context, p *entities.Purchase) error {
	rc := s.rates.Resolve(ctx)
	return validate(p, rc)
}

func validate(p *entities.Purchase, rc entities.RateConfig) error {
	if !p.Kind.Valid() {
		return domainerrors.ValidationError("kind", fmt.Sprintf("unknown purchase kind %q", p.Kind))
	}

	switch p.Kind {
	case entities.KindStars:
		handle, err := NormalizeHandle(p.Recipient)
		if err != nil {
			return err
		}
		p.Recipient = handle
		if p.Quantity < MinStars || p.Quantity > MaxStars {
			return domainerrors.ValidationError("quantity",
				fmt.Sprintf("stars quantity must be between %d and %d", MinStars, MaxStars))
		}

	case entities.KindPremium:
		handle, err := NormalizeHandle(p.Recipient)
		if err != nil {
			return err
		}
		p.Recipient = handle
		if _, ok := rc.PremiumPricesRUB[p.Months]; !ok {
			return domainerrors.ValidationError("months", "premium term must be 3, 6 or 12 months")
		}

	case entities.KindTopup:
		if strings.TrimSpace(p.Recipient) == "" {
			return domainerrors.ValidationError("recipient", "destination wallet is required")
		}
		if p.AmountRUB.LessThan(rc.TopupMinRUB) || p.AmountRUB.GreaterThan(rc.TopupMaxRUB) {
			return domainerrors.ValidationError("amount_rub",
				fmt.Sprintf("top-up amount must be between %s and %s rubles",
					rc.TopupMinRUB.StringFixed(0), rc.TopupMaxRUB.StringFixed(0)))
		}

	case entities.KindSpin:
		if p.Quantity < MinSpins || p.Quantity > MaxSpins {
			return domainerrors.ValidationError("quantity",
				fmt.Sprintf("spin quantity must be between %d and %d", MinSpins, MaxSpins))
		}
	}
	return nil
}

// Quote validates the purchase and computes the charged total for the
// given rail: base price times one plus the provider commission
// percent, rounded to kopeks.
func (s *Service) Quote(ctx context.Context, p *entities.Purchase, provider entities.Provider, method int) (entities.Quote, error) {
	rc := s.rates.Resolve(ctx)
	if err := validate(p, rc); err != nil {
		return entities.Quote{}, err
	}

	base, err := basePrice(*p, rc)
	if err != nil {
		return entities.Quote{}, err
	}

	pct := rc.CommissionFor(provider, method)
	total := base.Mul(decimal.NewFromInt(1).Add(pct.Div(oneHundred))).Round(2)

	return entities.Quote{
		BaseRUB:       base.Round(2),
		CommissionPct: pct,
		TotalRUB:      total,
	}, nil
}

func basePrice(p entities.Purchase, rc entities.RateConfig) (decimal.Decimal, error) {
	switch p.Kind {
	case entities.KindStars:
		return rc.StarPriceRUB.Mul(decimal.NewFromInt(int64(p.Quantity))), nil
	case entities.KindPremium:
		price, ok := rc.PremiumPricesRUB[p.Months]
		if !ok {
			return decimal.Zero, domainerrors.ValidationError("months", "premium term must be 3, 6 or 12 months")
		}
		return price, nil
	case entities.KindTopup:
		return p.AmountRUB.Mul(rc.TopupMarkup), nil
	case entities.KindSpin:
		return rc.SpinPriceRUB.Mul(decimal.NewFromInt(int64(p.Quantity))), nil
	}
	return decimal.Zero, domainerrors.ValidationError("kind", fmt.Sprintf("unknown purchase kind %q", p.Kind))
}

// NanoFromRUB converts rubles to nanoton at the given TON/RUB rate.
func NanoFromRUB(amountRUB, tonRateRUB decimal.Decimal) int64 {
	if tonRateRUB.IsZero() {
		return 0
	}
	ton := amountRUB.Div(tonRateRUB)
	return ton.Mul(decimal.NewFromInt(1_000_000_000)).Round(0).IntPart()
}

package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// Provider identifies a payment rail.
type Provider string

const (
	ProviderCryptoPay Provider = "cryptopay"
	ProviderPlatega   Provider = "platega"
	ProviderFreeKassa Provider = "freekassa"
	ProviderTON       Provider = "ton"
)

func (p Provider) Valid() bool {
	switch p {
	case ProviderCryptoPay, ProviderPlatega, ProviderFreeKassa, ProviderTON:
		return true
	}
	return false
}

// PurchaseKind identifies what a paid order delivers.
type PurchaseKind string

const (
	KindStars   PurchaseKind = "stars"
	KindPremium PurchaseKind = "premium"
	KindTopup   PurchaseKind = "topup"
	KindSpin    PurchaseKind = "spin"
)

func (k PurchaseKind) Valid() bool {
	switch k {
	case KindStars, KindPremium, KindTopup, KindSpin:
		return true
	}
	return false
}

// Platega payment method codes, fixed by the gateway contract.
const (
	PlategaMethodSBP   = 2
	PlategaMethodCards = 10
)

// Purchase is the tagged payload of an order. Which fields are
// meaningful depends on Kind:
//
//	stars   — Recipient (handle), Quantity
//	premium — Recipient (handle), Months
//	topup   — Recipient (TON wallet), AmountRUB
//	spin    — Quantity
type Purchase struct {
	Kind      PurchaseKind    `db:"kind" json:"kind"`
	Recipient string          `db:"recipient" json:"recipient,omitempty"`
	Quantity  int             `db:"quantity" json:"quantity,omitempty"`
	Months    int             `db:"months" json:"months,omitempty"`
	AmountRUB decimal.Decimal `db:"amount_rub" json:"amount_rub,omitempty"`
}

// Order is the per-rail purchase record. ID is provider-scoped: the
// invoice id for cryptopay, the transaction id for platega/freekassa,
// and the 24-hex correlation comment for the on-chain rail.
// BaseRUB is the pre-commission price; referral credits accrue on it,
// while ChargedRUB is what the buyer actually paid on the rail.
type Order struct {
	ID             string          `db:"id" json:"id"`
	Provider       Provider        `db:"provider" json:"provider"`
	UserID         int64           `db:"user_id" json:"user_id"`
	Purchase       Purchase        `json:"purchase"`
	BaseRUB        decimal.Decimal `db:"base_rub" json:"base_rub"`
	ChargedRUB     decimal.Decimal `db:"charged_rub" json:"charged_rub"`
	PaymentMethod  int             `db:"payment_method" json:"payment_method,omitempty"`
	ExpectedNano   int64           `db:"expected_nano" json:"expected_nano,omitempty"`
	PayURL         string          `db:"pay_url" json:"pay_url,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	Delivered      bool            `db:"delivered" json:"delivered"`
	DeliveredAt    *time.Time      `db:"delivered_at" json:"delivered_at,omitempty"`
	DeliveryResult string          `db:"delivery_result" json:"delivery_result,omitempty"`
}

// Quote is the server-computed price for a purchase intent.
type Quote struct {
	BaseRUB       decimal.Decimal `json:"base_rub"`
	CommissionPct decimal.Decimal `json:"commission_pct"`
	TotalRUB      decimal.Decimal `json:"total_rub"`
}

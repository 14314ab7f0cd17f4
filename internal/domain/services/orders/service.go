// Package orders creates purchase intents: it prices the purchase,
// opens the payment on the chosen rail, and persists the order record
// before the pay URL is handed to the client.
package orders

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"time"

	"github.com/jetstore/store-service/internal/adapters/cryptopay"
	"github.com/jetstore/store-service/internal/adapters/freekassa"
	"github.com/jetstore/store-service/internal/adapters/platega"
	"github.com/jetstore/store-service/internal/domain/entities"
	domainerrors "github.com/jetstore/store-service/internal/domain/errors"
	"github.com/jetstore/store-service/internal/domain/repositories"
	"github.com/jetstore/store-service/internal/domain/services/pricing"
	"github.com/jetstore/store-service/internal/domain/services/rates"
	"github.com/jetstore/store-service/pkg/logger"
	"github.com/jetstore/store-service/pkg/metrics"
)

// Service opens orders across the payment rails.
type Service struct {
	store       repositories.OrderStore
	pricing     *pricing.Service
	rates       *rates.Service
	cryptopay   *cryptopay.Client
	platega     *platega.Client
	freekassa   *freekassa.Client
	tonMerchant string
	metrics     *metrics.Metrics
	logger      *logger.Logger
}

// NewService creates the order service. Gateway clients for
// unconfigured rails may be nil; creating an order on such a rail
// fails with a provider error.
func NewService(
	store repositories.OrderStore,
	pricingService *pricing.Service,
	rateService *rates.Service,
	cryptopayClient *cryptopay.Client,
	plategaClient *platega.Client,
	freekassaClient *freekassa.Client,
	tonMerchantAddress string,
	m *metrics.Metrics,
	log *logger.Logger,
) *Service {
	return &Service{
		store:       store,
		pricing:     pricingService,
		rates:       rateService,
		cryptopay:   cryptopayClient,
		platega:     plategaClient,
		freekassa:   freekassaClient,
		tonMerchant: tonMerchantAddress,
		metrics:     m,
		logger:      log,
	}
}

// CreateRequest is a purchase intent.
type CreateRequest struct {
	UserID   int64
	Provider entities.Provider
	// Method selects the platega method code; ignored elsewhere.
	Method   int
	Purchase entities.Purchase
}

// CreateResult carries everything the client needs to pay.
type CreateResult struct {
	Order *entities.Order `json:"order"`
	Quote entities.Quote  `json:"quote"`
	// TON rail extras: the transfer the client must send.
	TONAddress string `json:"ton_address,omitempty"`
	TONComment string `json:"ton_comment,omitempty"`
	TONNano    int64  `json:"ton_nano,omitempty"`
}

// Create prices the purchase, opens it on the rail, and stores the
// order. The stored record, not anything the client sent, is what
// fulfillment later trusts.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if !req.Provider.Valid() {
		return nil, domainerrors.ValidationError("provider", fmt.Sprintf("unknown provider %q", req.Provider))
	}
	if req.UserID <= 0 {
		return nil, domainerrors.ValidationError("user_id", "user id is required")
	}

	quote, err := s.pricing.Quote(ctx, &req.Purchase, req.Provider, req.Method)
	if err != nil {
		return nil, err
	}

	order := &entities.Order{
		Provider:   req.Provider,
		UserID:     req.UserID,
		Purchase:   req.Purchase,
		BaseRUB:    quote.BaseRUB,
		ChargedRUB: quote.TotalRUB,
		CreatedAt:  time.Now().UTC(),
	}
	result := &CreateResult{Order: order, Quote: quote}

	switch req.Provider {
	case entities.ProviderCryptoPay:
		if s.cryptopay == nil {
			return nil, domainerrors.ProviderError("cryptopay", nil)
		}
		invoice, err := s.cryptopay.CreateInvoice(ctx, quote.TotalRUB, description(req.Purchase))
		if err != nil {
			return nil, domainerrors.ProviderError("cryptopay", err)
		}
		order.ID = invoice.ID
		order.PayURL = invoice.PayURL

	case entities.ProviderPlatega:
		if s.platega == nil {
			return nil, domainerrors.ProviderError("platega", nil)
		}
		method := req.Method
		if method != entities.PlategaMethodSBP && method != entities.PlategaMethodCards {
			return nil, domainerrors.ValidationError("method", "payment method must be 2 (SBP) or 10 (cards)")
		}
		tx, err := s.platega.CreateTransaction(ctx, method, quote.TotalRUB, description(req.Purchase))
		if err != nil {
			return nil, domainerrors.ProviderError("platega", err)
		}
		order.ID = tx.ID
		order.PaymentMethod = method
		order.PayURL = tx.Redirect

	case entities.ProviderFreeKassa:
		if s.freekassa == nil {
			return nil, domainerrors.ProviderError("freekassa", nil)
		}
		id, err := newCorrelationID()
		if err != nil {
			return nil, domainerrors.InternalError("failed to generate order id", err)
		}
		order.ID = id
		order.PayURL = s.freekassa.PaymentLink(id, quote.TotalRUB)

	case entities.ProviderTON:
		if s.tonMerchant == "" {
			return nil, domainerrors.ProviderError("ton", nil)
		}
		id, err := newCorrelationID()
		if err != nil {
			return nil, domainerrors.InternalError("failed to generate order id", err)
		}
		rate := s.rates.TONRateRUB(ctx)
		nano := pricing.NanoFromRUB(quote.TotalRUB, rate)
		if nano <= 0 {
			return nil, domainerrors.InternalError("ton conversion produced a non-positive amount", nil)
		}
		order.ID = id
		order.ExpectedNano = nano
		order.PayURL = tonTransferURL(s.tonMerchant, nano, id)
		result.TONAddress = s.tonMerchant
		result.TONComment = id
		result.TONNano = nano
	}

	if err := s.store.Put(ctx, order); err != nil {
		return nil, domainerrors.Wrap(err, "failed to persist order")
	}

	s.metrics.OrdersCreated.WithLabelValues(string(order.Provider), string(order.Purchase.Kind)).Inc()
	s.logger.Info("Order created",
		"provider", order.Provider,
		"order_id", order.ID,
		"kind", order.Purchase.Kind,
		"charged_rub", order.ChargedRUB.StringFixed(2),
	)
	return result, nil
}

// newCorrelationID returns 24 lowercase hex chars. On the TON rail it
// doubles as the transfer comment clients must include.
func newCorrelationID() (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func tonTransferURL(address string, nano int64, comment string) string {
	return fmt.Sprintf("ton://transfer/%s?amount=%d&text=%s", address, nano, url.QueryEscape(comment))
}

func description(p entities.Purchase) string {
	switch p.Kind {
	case entities.KindStars:
		return fmt.Sprintf("%d stars for @%s", p.Quantity, p.Recipient)
	case entities.KindPremium:
		return fmt.Sprintf("premium %d months for @%s", p.Months, p.Recipient)
	case entities.KindTopup:
		return fmt.Sprintf("wallet top-up %s RUB", p.AmountRUB.StringFixed(2))
	case entities.KindSpin:
		return fmt.Sprintf("%d roulette spins", p.Quantity)
	}
	return string(p.Kind)
}

// Package confirm answers "is this order settled?" through the pull
// path: provider status APIs for the gateway rails and a chain event
// scan for raw TON transfers. Every error collapses to "not settled";
// only a positive provider answer settles an order.
package confirm

import (
	"context"

	"github.com/jetstore/store-service/internal/adapters/platega"
	"github.com/jetstore/store-service/internal/adapters/tonapi"
	"github.com/jetstore/store-service/internal/domain/entities"
	domainerrors "github.com/jetstore/store-service/internal/domain/errors"
	"github.com/jetstore/store-service/internal/domain/repositories"
	"github.com/jetstore/store-service/pkg/logger"
)

// ToleranceNano absorbs sender-side rounding on chain transfers
// (0.001 TON).
const ToleranceNano = int64(1_000_000)

// ChainScanner is the slice of the indexer client the verifier needs.
type ChainScanner interface {
	AccountTransfers(ctx context.Context, account string, limit int) ([]tonapi.TransferEvent, error)
}

// InvoiceChecker polls the crypto-invoice gateway.
type InvoiceChecker interface {
	IsPaid(ctx context.Context, invoiceID string) (bool, error)
}

// TransactionChecker polls the PSP.
type TransactionChecker interface {
	GetTransactionStatus(ctx context.Context, transactionID string) (string, error)
}

// OrderChecker polls the second card gateway.
type OrderChecker interface {
	IsPaid(ctx context.Context, orderID string) (bool, error)
}

// Service verifies settlement through the pull path.
type Service struct {
	store       repositories.OrderStore
	cryptopay   InvoiceChecker
	platega     TransactionChecker
	freekassa   OrderChecker
	chain       ChainScanner
	tonMerchant string
	scanLimit   int
	logger      *logger.Logger
}

// NewService creates the verifier. Checkers for unconfigured rails may
// be nil; their orders then never settle through the pull path.
func NewService(
	store repositories.OrderStore,
	invoiceChecker InvoiceChecker,
	transactionChecker TransactionChecker,
	orderChecker OrderChecker,
	chain ChainScanner,
	tonMerchantAddress string,
	scanLimit int,
	log *logger.Logger,
) *Service {
	if scanLimit <= 0 {
		scanLimit = 50
	}
	return &Service{
		store:       store,
		cryptopay:   invoiceChecker,
		platega:     transactionChecker,
		freekassa:   orderChecker,
		chain:       chain,
		tonMerchant: tonMerchantAddress,
		scanLimit:   scanLimit,
		logger:      log,
	}
}

// Settled reports whether the order has settled on its rail. A false
// verdict with a nil error means "not yet"; an error always means
// "treat as not settled".
func (s *Service) Settled(ctx context.Context, order *entities.Order) (bool, error) {
	switch order.Provider {
	case entities.ProviderCryptoPay:
		if s.cryptopay == nil {
			return false, domainerrors.NotSettledError(string(order.Provider), order.ID)
		}
		paid, err := s.cryptopay.IsPaid(ctx, order.ID)
		if err != nil {
			return false, domainerrors.Wrap(err, "invoice status check failed")
		}
		return paid, nil

	case entities.ProviderPlatega:
		if s.platega == nil {
			return false, domainerrors.NotSettledError(string(order.Provider), order.ID)
		}
		status, err := s.platega.GetTransactionStatus(ctx, order.ID)
		if err != nil {
			return false, domainerrors.Wrap(err, "transaction status check failed")
		}
		return status == platega.StatusConfirmed, nil

	case entities.ProviderFreeKassa:
		if s.freekassa == nil {
			return false, domainerrors.NotSettledError(string(order.Provider), order.ID)
		}
		paid, err := s.freekassa.IsPaid(ctx, order.ID)
		if err != nil {
			return false, domainerrors.Wrap(err, "order status check failed")
		}
		return paid, nil

	case entities.ProviderTON:
		return s.settledOnChain(ctx, order)
	}

	return false, domainerrors.ValidationError("provider", "unknown provider")
}

// settledOnChain scans recent transfers on the merchant account for
// one carrying the order's correlation comment with a covering amount.
// The matching event is claimed for this order atomically so a single
// transfer can never settle two orders; the owner keeps verifying
// settled until its delivery actually succeeds.
func (s *Service) settledOnChain(ctx context.Context, order *entities.Order) (bool, error) {
	if s.chain == nil || s.tonMerchant == "" {
		return false, domainerrors.NotSettledError(string(order.Provider), order.ID)
	}

	transfers, err := s.chain.AccountTransfers(ctx, s.tonMerchant, s.scanLimit)
	if err != nil {
		return false, domainerrors.Wrap(err, "chain scan failed")
	}

	minAmount := order.ExpectedNano - ToleranceNano
	for _, transfer := range transfers {
		if transfer.Comment != order.ID {
			continue
		}
		if transfer.AmountNano < minAmount {
			s.logger.Warn("Transfer with matching comment below expected amount",
				"order_id", order.ID,
				"got_nano", transfer.AmountNano,
				"expected_nano", order.ExpectedNano,
			)
			continue
		}

		claimed, err := s.store.ClaimChainEvent(ctx, transfer.EventID, order.Provider, order.ID)
		if err != nil {
			return false, domainerrors.Wrap(err, "failed to claim chain event")
		}
		if !claimed {
			s.logger.Warn("Chain event claimed by another order", "event_id", transfer.EventID, "order_id", order.ID)
			continue
		}
		return true, nil
	}
	return false, nil
}

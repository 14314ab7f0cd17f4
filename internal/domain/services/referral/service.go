// Package referral keeps the 3-level referral ledger. Attribution is
// first-write-wins and permanent; earnings accrue only when a purchase
// is actually delivered, so the ledger can never credit an unpaid or
// duplicate order.
package referral

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jetstore/store-service/internal/domain/entities"
	domainerrors "github.com/jetstore/store-service/internal/domain/errors"
	"github.com/jetstore/store-service/internal/domain/repositories"
	"github.com/jetstore/store-service/pkg/logger"
)

// Tier thresholds on accumulated downline purchase volume.
var (
	silverVolumeRUB = decimal.NewFromInt(50_000)
	goldVolumeRUB   = decimal.NewFromInt(150_000)
)

// RateSource resolves the effective referral percents and withdraw
// minimum at credit time.
type RateSource interface {
	Resolve(ctx context.Context) entities.RateConfig
}

// PayoutNotifier posts withdraw tasks to the operator chat.
type PayoutNotifier interface {
	NotifyOperators(ctx context.Context, text string) error
	BotUsername() string
}

// Service owns referral attribution, crediting, and withdrawals.
type Service struct {
	store    repositories.ReferralStore
	rates    RateSource
	notifier PayoutNotifier
	logger   *logger.Logger
}

// NewService creates the referral service.
func NewService(store repositories.ReferralStore, rates RateSource, notifier PayoutNotifier, log *logger.Logger) *Service {
	return &Service{
		store:    store,
		rates:    rates,
		notifier: notifier,
		logger:   log,
	}
}

// Attach attributes userID to inviterID. The first attribution wins;
// repeat calls are silent no-ops so bot /start retries stay harmless.
// Self-referral is rejected.
func (s *Service) Attach(ctx context.Context, userID, inviterID int64) error {
	if userID == inviterID {
		return domainerrors.SelfReferralError()
	}

	inviter, err := s.store.GetOrCreate(ctx, inviterID)
	if err != nil {
		return domainerrors.Wrap(err, "failed to load inviter account")
	}
	if _, err := s.store.GetOrCreate(ctx, userID); err != nil {
		return domainerrors.Wrap(err, "failed to load user account")
	}

	attached, err := s.store.AttachParents(ctx, userID, &inviterID, inviter.Parent1, inviter.Parent2)
	if err != nil {
		return domainerrors.Wrap(err, "failed to attach parents")
	}
	if !attached {
		return nil
	}

	parents := []*int64{&inviterID, inviter.Parent1, inviter.Parent2}
	for i, parent := range parents {
		if parent == nil {
			break
		}
		if err := s.store.AppendLevel(ctx, *parent, i+1, userID); err != nil {
			s.logger.Error("Failed to append downline entry",
				"ancestor_id", *parent, "level", i+1, "user_id", userID, "error", err)
		}
	}

	s.logger.Info("Referral attached", "user_id", userID, "inviter_id", inviterID)
	return nil
}

// CreditPurchase spreads a delivered purchase over the buyer's ancestor
// chain at the current level percents. A buyer with no account or no
// parents is a no-op.
func (s *Service) CreditPurchase(ctx context.Context, userID int64, amountRUB decimal.Decimal) error {
	account, err := s.store.Get(ctx, userID)
	if err != nil {
		if domainerrors.IsNotFound(err) {
			return nil
		}
		return domainerrors.Wrap(err, "failed to load referral account")
	}

	pct := s.rates.Resolve(ctx).ReferralPct
	hundred := decimal.NewFromInt(100)

	for i, parentID := range account.Parents() {
		earned := amountRUB.Mul(pct[i]).Div(hundred).Round(2)
		if err := s.store.Credit(ctx, parentID, amountRUB, earned); err != nil {
			return domainerrors.Wrap(err, fmt.Sprintf("failed to credit level %d ancestor", i+1))
		}
		s.logger.Info("Referral credit",
			"ancestor_id", parentID,
			"level", i+1,
			"buyer_id", userID,
			"earned_rub", earned.StringFixed(2),
		)
	}
	return nil
}

// Stats returns the public downline projection for a user.
func (s *Service) Stats(ctx context.Context, userID int64) (*entities.ReferralStats, error) {
	account, err := s.store.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, domainerrors.Wrap(err, "failed to load referral account")
	}

	return &entities.ReferralStats{
		UserID:    account.UserID,
		Tier:      tierFor(account.VolumeRUB),
		Level1:    len(account.Level1),
		Level2:    len(account.Level2),
		Level3:    len(account.Level3),
		VolumeRUB: account.VolumeRUB,
		EarnedRUB: account.EarnedRUB,
	}, nil
}

// Link builds the bot deep link that attributes new users to userID.
func (s *Service) Link(userID int64) string {
	return fmt.Sprintf("https://t.me/%s?start=ref_%d", s.notifier.BotUsername(), userID)
}

// Withdraw debits earned balance and posts a payout task to operators.
// payoutMethod and payoutDetails tell the operator where to send the
// money. The debit is atomic against the balance, so concurrent
// withdrawals cannot overdraw.
func (s *Service) Withdraw(ctx context.Context, userID int64, amountRUB decimal.Decimal, payoutMethod, payoutDetails string) error {
	if payoutMethod == "" || payoutDetails == "" {
		return domainerrors.ValidationError("payout", "payout method and details are required")
	}
	minWithdraw := s.rates.Resolve(ctx).MinWithdrawRUB
	if amountRUB.LessThan(minWithdraw) {
		return domainerrors.ValidationError("amount",
			fmt.Sprintf("minimum withdrawal is %s RUB", minWithdraw.StringFixed(2)))
	}

	debited, err := s.store.DebitEarned(ctx, userID, amountRUB)
	if err != nil {
		return domainerrors.Wrap(err, "failed to debit earnings")
	}
	if !debited {
		return domainerrors.InsufficientFundsError("earned balance does not cover the withdrawal")
	}

	text := fmt.Sprintf("Referral payout task\nUser: %d\nAmount: %s RUB\nMethod: %s\nDetails: %s",
		userID, amountRUB.StringFixed(2), payoutMethod, payoutDetails)
	if err := s.notifier.NotifyOperators(ctx, text); err != nil {
		// The debit already happened; operators must be paged another way.
		s.logger.Error("Failed to post payout task", "user_id", userID, "error", err)
	}

	s.logger.Info("Referral withdrawal", "user_id", userID, "amount_rub", amountRUB.StringFixed(2))
	return nil
}

func tierFor(volume decimal.Decimal) entities.ReferralTier {
	switch {
	case volume.GreaterThanOrEqual(goldVolumeRUB):
		return entities.TierGold
	case volume.GreaterThanOrEqual(silverVolumeRUB):
		return entities.TierSilver
	default:
		return entities.TierBronze
	}
}

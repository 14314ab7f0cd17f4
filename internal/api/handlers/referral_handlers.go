package handlers

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/jetstore/store-service/internal/domain/entities"
	"github.com/jetstore/store-service/pkg/logger"
)

// ReferralService exposes the referral ledger operations.
type ReferralService interface {
	Attach(ctx context.Context, userID, inviterID int64) error
	Stats(ctx context.Context, userID int64) (*entities.ReferralStats, error)
	Link(userID int64) string
	Withdraw(ctx context.Context, userID int64, amountRUB decimal.Decimal, payoutMethod, payoutDetails string) error
}

// ReferralHandler handles referral attribution and payouts.
type ReferralHandler struct {
	service ReferralService
	logger  *logger.Logger
}

// NewReferralHandler creates a new referral handler
func NewReferralHandler(service ReferralService, log *logger.Logger) *ReferralHandler {
	return &ReferralHandler{service: service, logger: log}
}

// AttachRequest attributes a user to an inviter.
type AttachRequest struct {
	UserID    int64 `json:"user_id" binding:"required,gt=0"`
	InviterID int64 `json:"inviter_id" binding:"required,gt=0"`
}

// Attach binds a new user to their inviter; first write wins
// POST /api/referral/attach
func (h *ReferralHandler) Attach(c *gin.Context) {
	var req AttachRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	if err := h.service.Attach(c.Request.Context(), req.UserID, req.InviterID); err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, gin.H{"status": "ok"})
}

// Stats returns a user's downline counts and earnings
// GET /api/referral/stats/:userID
func (h *ReferralHandler) Stats(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("userID"), 10, 64)
	if err != nil || userID <= 0 {
		respondBadRequest(c, "invalid user id")
		return
	}

	stats, err := h.service.Stats(c.Request.Context(), userID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, stats)
}

// Link returns the user's referral deep link
// GET /api/referral/link/:userID
func (h *ReferralHandler) Link(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("userID"), 10, 64)
	if err != nil || userID <= 0 {
		respondBadRequest(c, "invalid user id")
		return
	}
	respondSuccess(c, gin.H{"link": h.service.Link(userID)})
}

// WithdrawRequest asks to pay out earned referral balance. The payout
// method and details end up on the operator task.
type WithdrawRequest struct {
	UserID        int64  `json:"user_id" binding:"required,gt=0"`
	AmountRUB     string `json:"amount_rub" binding:"required"`
	PayoutMethod  string `json:"payout_method" binding:"required,max=32"`
	PayoutDetails string `json:"payout_details" binding:"required,max=256"`
}

// Withdraw debits earned balance and queues an operator payout
// POST /api/referral/withdraw
func (h *ReferralHandler) Withdraw(c *gin.Context) {
	var req WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	amount, err := decimal.NewFromString(req.AmountRUB)
	if err != nil || !amount.IsPositive() {
		respondBadRequest(c, "amount_rub must be a positive decimal")
		return
	}

	if err := h.service.Withdraw(c.Request.Context(), req.UserID, amount, req.PayoutMethod, req.PayoutDetails); err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, gin.H{"status": "ok"})
}

package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/jetstore/store-service/internal/domain/entities"
	"github.com/jetstore/store-service/internal/domain/services/orders"
	"github.com/jetstore/store-service/pkg/logger"
	"github.com/jetstore/store-service/pkg/metrics"
)

// OrderCreator opens purchase intents on a payment rail.
type OrderCreator interface {
	Create(ctx context.Context, req orders.CreateRequest) (*orders.CreateResult, error)
}

// SettlementVerifier answers whether an order settled upstream.
type SettlementVerifier interface {
	Settled(ctx context.Context, order *entities.Order) (bool, error)
}

// Settler delivers a settled order exactly once.
type Settler interface {
	Settle(ctx context.Context, provider entities.Provider, orderID string) (*entities.Order, error)
}

// OrderGetter loads stored orders.
type OrderGetter interface {
	Get(ctx context.Context, provider entities.Provider, id string) (*entities.Order, error)
}

// OrderHandler handles order creation and the client poll path.
type OrderHandler struct {
	creator  OrderCreator
	store    OrderGetter
	verifier SettlementVerifier
	settler  Settler
	metrics  *metrics.Metrics
	logger   *logger.Logger
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(creator OrderCreator, store OrderGetter, verifier SettlementVerifier, settler Settler, m *metrics.Metrics, log *logger.Logger) *OrderHandler {
	return &OrderHandler{
		creator:  creator,
		store:    store,
		verifier: verifier,
		settler:  settler,
		metrics:  m,
		logger:   log,
	}
}

// CreateOrderRequest is the purchase intent submitted by the bot.
type CreateOrderRequest struct {
	UserID    int64  `json:"user_id" binding:"required,gt=0"`
	Provider  string `json:"provider" binding:"required,oneof=cryptopay platega freekassa ton"`
	Method    int    `json:"method" binding:"omitempty,oneof=2 10"`
	Kind      string `json:"kind" binding:"required,oneof=stars premium topup spin"`
	Recipient string `json:"recipient" binding:"omitempty,max=64"`
	Quantity  int    `json:"quantity" binding:"omitempty,gte=0"`
	Months    int    `json:"months" binding:"omitempty,gte=0"`
	AmountRUB string `json:"amount_rub" binding:"omitempty"`
}

// CreateOrder prices a purchase server-side and opens it on the rail
// POST /api/orders
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	amount := decimal.Zero
	if req.AmountRUB != "" {
		parsed, err := decimal.NewFromString(req.AmountRUB)
		if err != nil {
			respondBadRequest(c, "amount_rub must be a decimal number")
			return
		}
		amount = parsed
	}

	result, err := h.creator.Create(c.Request.Context(), orders.CreateRequest{
		UserID:   req.UserID,
		Provider: entities.Provider(req.Provider),
		Method:   req.Method,
		Purchase: entities.Purchase{
			Kind:      entities.PurchaseKind(req.Kind),
			Recipient: req.Recipient,
			Quantity:  req.Quantity,
			Months:    req.Months,
			AmountRUB: amount,
		},
	})
	if err != nil {
		respondDomainError(c, err)
		return
	}

	respondCreated(c, result)
}

// CheckPaymentRequest identifies the order to verify.
type CheckPaymentRequest struct {
	Provider string `json:"provider" binding:"required,oneof=cryptopay platega freekassa ton"`
	OrderID  string `json:"order_id" binding:"required,max=64"`
}

// CheckPaymentResponse reports the poll outcome.
type CheckPaymentResponse struct {
	Status string          `json:"status"`
	Order  *entities.Order `json:"order,omitempty"`
}

// CheckPayment is the client's "I paid" button: verify upstream and
// deliver if settled. Safe to call repeatedly.
// POST /api/payment/check
func (h *OrderHandler) CheckPayment(c *gin.Context) {
	var req CheckPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	provider := entities.Provider(req.Provider)

	order, err := h.store.Get(ctx, provider, req.OrderID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	if order.Delivered {
		respondSuccess(c, CheckPaymentResponse{Status: "delivered", Order: order})
		return
	}

	settled, err := h.verifier.Settled(ctx, order)
	if err != nil {
		h.logger.Warn("Settlement check failed",
			"provider", provider, "order_id", order.ID, "error", err)
		respondSuccess(c, CheckPaymentResponse{Status: "pending"})
		return
	}
	if !settled {
		respondSuccess(c, CheckPaymentResponse{Status: "pending"})
		return
	}

	h.metrics.PaymentsConfirmed.WithLabelValues(string(provider), "poll").Inc()

	delivered, err := h.settler.Settle(ctx, provider, order.ID)
	if err != nil {
		// Paid but not delivered; the reconcile sweep retries.
		h.logger.Error("Delivery after poll confirmation failed",
			"provider", provider, "order_id", order.ID, "error", err)
		respondSuccess(c, CheckPaymentResponse{Status: "paid"})
		return
	}

	respondSuccess(c, CheckPaymentResponse{Status: "delivered", Order: delivered})
}

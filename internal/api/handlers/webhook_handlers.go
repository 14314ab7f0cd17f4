package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jetstore/store-service/internal/adapters/cryptopay"
	"github.com/jetstore/store-service/internal/adapters/freekassa"
	"github.com/jetstore/store-service/internal/adapters/platega"
	"github.com/jetstore/store-service/internal/domain/entities"
	"github.com/jetstore/store-service/pkg/logger"
	"github.com/jetstore/store-service/pkg/metrics"
)

// SignatureVerifier checks a raw webhook body against its HMAC header.
type SignatureVerifier interface {
	VerifyWebhookSignature(body []byte, signature string) bool
}

// CallbackVerifier checks the card gateway's form callback signature.
type CallbackVerifier interface {
	VerifyCallback(cb freekassa.Callback) bool
}

// WebhookHandler handles payment gateway push notifications. Every
// handler verifies the signature before touching any state, and
// returns 200 once the signature passed so the gateway stops retrying;
// failed deliveries are then the reconcile sweep's problem.
type WebhookHandler struct {
	cryptopay SignatureVerifier
	platega   SignatureVerifier
	freekassa CallbackVerifier
	settler   Settler
	metrics   *metrics.Metrics
	logger    *logger.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(cryptopayClient SignatureVerifier, plategaClient SignatureVerifier, freekassaClient CallbackVerifier, settler Settler, m *metrics.Metrics, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		cryptopay: cryptopayClient,
		platega:   plategaClient,
		freekassa: freekassaClient,
		settler:   settler,
		metrics:   m,
		logger:    log,
	}
}

// HandleCryptoPay handles invoice push notifications
// POST /webhooks/cryptopay
func (h *WebhookHandler) HandleCryptoPay(c *gin.Context) {
	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.reject(c, "cryptopay", "unreadable_body", http.StatusBadRequest)
		return
	}

	signature := c.GetHeader(cryptopay.WebhookSignatureHeader)
	if h.cryptopay == nil || !h.cryptopay.VerifyWebhookSignature(rawBody, signature) {
		h.reject(c, "cryptopay", "bad_signature", http.StatusUnauthorized)
		return
	}

	var update cryptopay.WebhookUpdate
	if err := json.Unmarshal(rawBody, &update); err != nil {
		h.reject(c, "cryptopay", "bad_payload", http.StatusBadRequest)
		return
	}

	if update.UpdateType != cryptopay.UpdateInvoicePaid {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	var invoice cryptopay.WebhookInvoice
	if err := json.Unmarshal(update.Payload, &invoice); err != nil {
		h.reject(c, "cryptopay", "bad_payload", http.StatusBadRequest)
		return
	}

	h.metrics.PaymentsConfirmed.WithLabelValues("cryptopay", "webhook").Inc()
	h.settle(c, entities.ProviderCryptoPay, strconv.FormatInt(invoice.InvoiceID, 10))
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandlePlatega handles PSP transaction status notifications
// POST /webhooks/platega
func (h *WebhookHandler) HandlePlatega(c *gin.Context) {
	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.reject(c, "platega", "unreadable_body", http.StatusBadRequest)
		return
	}

	signature := c.GetHeader(platega.SignatureHeader)
	if h.platega == nil || !h.platega.VerifyWebhookSignature(rawBody, signature) {
		h.reject(c, "platega", "bad_signature", http.StatusUnauthorized)
		return
	}

	var payload platega.WebhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		h.reject(c, "platega", "bad_payload", http.StatusBadRequest)
		return
	}

	if payload.Status != platega.StatusConfirmed {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	h.metrics.PaymentsConfirmed.WithLabelValues("platega", "webhook").Inc()
	h.settle(c, entities.ProviderPlatega, payload.TransactionID)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleFreeKassa handles the card gateway's form-encoded callback.
// The gateway expects the literal body "YES" once the notification is
// accepted.
// POST /webhooks/freekassa
func (h *WebhookHandler) HandleFreeKassa(c *gin.Context) {
	cb := freekassa.Callback{
		MerchantID: c.PostForm("MERCHANT_ID"),
		Amount:     c.PostForm("AMOUNT"),
		OrderID:    c.PostForm("MERCHANT_ORDER_ID"),
		Sign:       c.PostForm("SIGN"),
	}

	if h.freekassa == nil || !h.freekassa.VerifyCallback(cb) {
		h.reject(c, "freekassa", "bad_signature", http.StatusUnauthorized)
		return
	}

	h.metrics.PaymentsConfirmed.WithLabelValues("freekassa", "webhook").Inc()
	h.settle(c, entities.ProviderFreeKassa, cb.OrderID)
	c.String(http.StatusOK, "YES")
}

// settle runs delivery for a confirmed order. Errors are logged only:
// the gateway already told us the money arrived, so the response stays
// positive and the reconcile sweep picks up the delivery.
func (h *WebhookHandler) settle(c *gin.Context, provider entities.Provider, orderID string) {
	if orderID == "" {
		h.logger.Warn("Webhook without order reference", "provider", provider)
		return
	}
	if _, err := h.settler.Settle(c.Request.Context(), provider, orderID); err != nil {
		h.logger.Error("Webhook delivery failed",
			"provider", provider, "order_id", orderID, "error", err)
	}
}

func (h *WebhookHandler) reject(c *gin.Context, provider, reason string, status int) {
	h.metrics.WebhooksRejected.WithLabelValues(provider, reason).Inc()
	h.logger.Warn("Webhook rejected",
		"provider", provider,
		"reason", reason,
		"client_ip", c.ClientIP(),
	)
	c.JSON(status, gin.H{"error": reason})
}

package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/jetstore/store-service/internal/domain/services/rates"
)

// RateReader serves the public price book and the live TON quote.
type RateReader interface {
	PublicSnapshot(ctx context.Context) rates.Snapshot
	TONRateRUB(ctx context.Context) decimal.Decimal
}

// ConfigHandler serves the public storefront configuration.
type ConfigHandler struct {
	rates RateReader
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(rateReader RateReader) *ConfigHandler {
	return &ConfigHandler{rates: rateReader}
}

// GetConfig returns the effective price book for clients
// GET /api/config
func (h *ConfigHandler) GetConfig(c *gin.Context) {
	respondSuccess(c, h.rates.PublicSnapshot(c.Request.Context()))
}

// GetTONRate returns the current TON/RUB quote
// GET /api/ton-rate
func (h *ConfigHandler) GetTONRate(c *gin.Context) {
	rate := h.rates.TONRateRUB(c.Request.Context())
	respondSuccess(c, gin.H{"ton_rub": rate.StringFixed(2)})
}

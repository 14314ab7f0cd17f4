package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/jetstore/store-service/pkg/logger"
)

// RateAdmin reads and writes price-book overrides.
type RateAdmin interface {
	Overrides(ctx context.Context) (map[string]string, error)
	SetOverride(ctx context.Context, key, value string) error
}

// AdminHandler handles the operator rate override surface.
type AdminHandler struct {
	rates  RateAdmin
	logger *logger.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(rateAdmin RateAdmin, log *logger.Logger) *AdminHandler {
	return &AdminHandler{rates: rateAdmin, logger: log}
}

// GetRates lists the stored overrides
// GET /admin/rates
func (h *AdminHandler) GetRates(c *gin.Context) {
	overrides, err := h.rates.Overrides(c.Request.Context())
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, gin.H{"overrides": overrides})
}

// SetRateRequest sets one price-book override.
type SetRateRequest struct {
	Key   string `json:"key" binding:"required,max=64"`
	Value string `json:"value" binding:"required,max=64"`
}

// SetRate validates and stores one override
// PUT /admin/rates
func (h *AdminHandler) SetRate(c *gin.Context) {
	var req SetRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	if err := h.rates.SetOverride(c.Request.Context(), req.Key, req.Value); err != nil {
		respondDomainError(c, err)
		return
	}

	h.logger.Info("Rate override set",
		"key", req.Key,
		"value", req.Value,
		"admin", c.GetString("admin_subject"),
	)
	respondSuccess(c, gin.H{"status": "ok"})
}

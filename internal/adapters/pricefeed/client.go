// Package pricefeed pulls the live TON/RUB quote from a CoinPaprika
// style ticker endpoint.
package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jetstore/store-service/pkg/logger"
	"github.com/jetstore/store-service/pkg/retry"
)

// Config represents the feed endpoint
type Config struct {
	URL     string
	Timeout time.Duration
}

// Client fetches quotes
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a new feed client
func NewClient(config Config, log *logger.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     log,
	}
}

// TONRateRUB returns the current TON price in rubles. Callers fall
// back to the configured rate on error.
func (c *Client) TONRateRUB(ctx context.Context) (decimal.Decimal, error) {
	var rate decimal.Decimal

	err := retry.Do(ctx, retry.DefaultPolicy(), func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.URL+"?quotes=RUB", nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("feed error: status %d", resp.StatusCode)
		}

		var ticker struct {
			Quotes map[string]struct {
				Price float64 `json:"price"`
			} `json:"quotes"`
		}
		if err := json.Unmarshal(body, &ticker); err != nil {
			return fmt.Errorf("failed to unmarshal ticker: %w", err)
		}

		quote, ok := ticker.Quotes["RUB"]
		if !ok || quote.Price <= 0 {
			return fmt.Errorf("ticker has no positive RUB quote")
		}
		rate = decimal.NewFromFloat(quote.Price)
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return rate, nil
}

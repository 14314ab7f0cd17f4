// Package tonwallet is the client for the custody wallet service that
// holds the merchant's TON and signs outbound transfers. Delivery
// transfers reserve a fee buffer on top of the requested amount.
package tonwallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/jetstore/store-service/pkg/logger"
)

// FeeBufferNano is reserved per transfer for network fees (0.05 TON).
const FeeBufferNano = int64(50_000_000)

// Config represents the custody service endpoints
type Config struct {
	BaseURL string
	APIKey  string
	// WalletAddress selects the sending wallet when the custody
	// service hosts more than one.
	WalletAddress string
	Timeout       time.Duration
}

// Client talks to the custody service
type Client struct {
	config     Config
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *logger.Logger
}

// NewClient creates a new custody client
func NewClient(config Config, log *logger.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = 20 * time.Second
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "tonwallet",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
		}),
		logger: log,
	}
}

// BalanceNano returns the wallet balance in nanoton
func (c *Client) BalanceNano(ctx context.Context) (int64, error) {
	endpoint := "/wallet/balance"
	if c.config.WalletAddress != "" {
		endpoint += "?address=" + url.QueryEscape(c.config.WalletAddress)
	}

	var result struct {
		BalanceNano int64 `json:"balance_nano"`
	}
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &result); err != nil {
		return 0, fmt.Errorf("wallet balance failed: %w", err)
	}
	return result.BalanceNano, nil
}

// Transfer sends amountNano to address with an optional base64 payload
// and returns the transaction hash. Callers must have verified the
// balance covers amount plus FeeBufferNano.
func (c *Client) Transfer(ctx context.Context, address string, amountNano int64, payloadB64 string) (string, error) {
	body := map[string]interface{}{
		"address":     address,
		"amount_nano": amountNano,
		"payload":     payloadB64,
	}
	if c.config.WalletAddress != "" {
		body["from"] = c.config.WalletAddress
	}

	var result struct {
		TxHash string `json:"tx_hash"`
	}
	if err := c.doRequest(ctx, http.MethodPost, "/wallet/transfer", body, &result); err != nil {
		return "", fmt.Errorf("wallet transfer failed: %w", err)
	}
	if result.TxHash == "" {
		return "", fmt.Errorf("custody service returned no tx hash")
	}
	return result.TxHash, nil
}

func (c *Client) doRequest(ctx context.Context, method, endpoint string, body, result interface{}) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		var reqBody io.Reader
		if body != nil {
			data, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal request body: %w", err)
			}
			reqBody = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+endpoint, reqBody)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("custody error: status %d, body: %s", resp.StatusCode, string(respBody))
		}

		if result != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, result); err != nil {
				return nil, fmt.Errorf("failed to unmarshal response: %w", err)
			}
		}
		return nil, nil
	})
	return err
}

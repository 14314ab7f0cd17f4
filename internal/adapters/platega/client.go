// Package platega is the client for the card/SBP payment service
// provider. Transactions are created server-side and confirmed by a
// signed webhook or by polling the transaction status endpoint.
package platega

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/jetstore/store-service/pkg/logger"
)

// SignatureHeader carries the webhook HMAC.
const SignatureHeader = "X-Signature"

// Transaction statuses.
const (
	StatusPending   = "PENDING"
	StatusConfirmed = "CONFIRMED"
	StatusCanceled  = "CANCELED"
)

// Config represents PSP credentials and endpoints
type Config struct {
	MerchantID string
	Secret     string
	BaseURL    string
	ReturnURL  string
	Timeout    time.Duration
}

// Client talks to the PSP
type Client struct {
	config     Config
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *logger.Logger
}

// Transaction is the PSP's transaction projection
type Transaction struct {
	ID       string `json:"transactionId"`
	Status   string `json:"status"`
	Redirect string `json:"redirect"`
}

// WebhookPayload is the push notification body
type WebhookPayload struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
	Amount        string `json:"amount"`
}

// NewClient creates a new PSP client
func NewClient(config Config, log *logger.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://app.platega.io"
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "platega",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
		}),
		logger: log,
	}
}

// CreateTransaction opens a payment of amountRUB through the given
// method code (2 = SBP, 10 = cards) and returns the redirect URL.
func (c *Client) CreateTransaction(ctx context.Context, method int, amountRUB decimal.Decimal, description string) (*Transaction, error) {
	body := map[string]interface{}{
		"paymentMethod": method,
		"id":            uuid.New().String(),
		"paymentDetails": map[string]interface{}{
			"amount":   amountRUB.StringFixed(2),
			"currency": "RUB",
		},
		"description": description,
		"return":      c.config.ReturnURL,
		"failedUrl":   c.config.ReturnURL,
	}

	var tx Transaction
	if err := c.doRequest(ctx, http.MethodPost, "/transaction/process", body, &tx); err != nil {
		return nil, fmt.Errorf("create transaction failed: %w", err)
	}
	return &tx, nil
}

// GetTransactionStatus polls a transaction. Errors never read as
// confirmed.
func (c *Client) GetTransactionStatus(ctx context.Context, transactionID string) (string, error) {
	var tx Transaction
	if err := c.doRequest(ctx, http.MethodGet, "/transaction/"+transactionID, nil, &tx); err != nil {
		return "", fmt.Errorf("get transaction failed: %w", err)
	}
	return tx.Status, nil
}

// VerifyWebhookSignature checks the HMAC-SHA256 of the raw body with
// the merchant secret, hex encoded.
func (c *Client) VerifyWebhookSignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(c.config.Secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (c *Client) doRequest(ctx context.Context, method, endpoint string, body, result interface{}) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		fullURL := c.config.BaseURL + endpoint

		var reqBody io.Reader
		if body != nil {
			data, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal request body: %w", err)
			}
			reqBody = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-MerchantId", c.config.MerchantID)
		req.Header.Set("X-Secret", c.config.Secret)

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
			return nil, fmt.Errorf("psp error: status %d, body: %s", resp.StatusCode, string(respBody))
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

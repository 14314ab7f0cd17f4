// Package cryptopay is the client for the hosted crypto-invoice
// gateway (Crypto Pay API shape): invoices are created server-side,
// paid on the gateway's page, and confirmed by webhook push or by
// polling getInvoices.
package cryptopay

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
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/jetstore/store-service/pkg/logger"
)

// Config represents gateway credentials and endpoints
type Config struct {
	APIToken string
	BaseURL  string
	// Asset restricts which crypto asset may settle fiat invoices
	// (e.g. "USDT"). Empty accepts any asset the gateway supports.
	Asset   string
	Timeout time.Duration
}

// Client talks to the invoice gateway
type Client struct {
	config     Config
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *logger.Logger
}

// Invoice is the gateway's invoice projection
type Invoice struct {
	ID         string
	Status     string
	PayURL     string
	MiniAppURL string
}

// Invoice statuses used by the confirmation path.
const (
	StatusActive = "active"
	StatusPaid   = "paid"
)

// NewClient creates a new gateway client
func NewClient(config Config, log *logger.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://pay.crypt.bot/api"
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "cryptopay",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
		}),
		logger: log,
	}
}

type apiEnvelope struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

type invoicePayload struct {
	InvoiceID         int64  `json:"invoice_id"`
	Status            string `json:"status"`
	PayURL            string `json:"pay_url"`
	BotInvoiceURL     string `json:"bot_invoice_url"`
	MiniAppInvoiceURL string `json:"mini_app_invoice_url"`
}

func (p invoicePayload) toInvoice() *Invoice {
	payURL := p.BotInvoiceURL
	if payURL == "" {
		payURL = p.PayURL
	}
	return &Invoice{
		ID:         fmt.Sprintf("%d", p.InvoiceID),
		Status:     p.Status,
		PayURL:     payURL,
		MiniAppURL: p.MiniAppInvoiceURL,
	}
}

// CreateInvoice creates a fiat-denominated invoice for the given
// ruble amount. The description shows up on the payment page.
func (c *Client) CreateInvoice(ctx context.Context, amountRUB decimal.Decimal, description string) (*Invoice, error) {
	body := map[string]interface{}{
		"currency_type": "fiat",
		"fiat":          "RUB",
		"amount":        amountRUB.StringFixed(2),
		"description":   description,
	}
	if c.config.Asset != "" {
		body["accepted_assets"] = c.config.Asset
	}

	var payload invoicePayload
	if err := c.doRequest(ctx, "createInvoice", body, &payload); err != nil {
		return nil, fmt.Errorf("create invoice failed: %w", err)
	}
	return payload.toInvoice(), nil
}

// IsPaid reports whether the invoice settled. Transport and parse
// errors surface as errors, never as a paid verdict.
func (c *Client) IsPaid(ctx context.Context, invoiceID string) (bool, error) {
	endpoint := "getInvoices?" + url.Values{"invoice_ids": {invoiceID}}.Encode()

	var result struct {
		Items []invoicePayload `json:"items"`
	}
	if err := c.doRequest(ctx, endpoint, nil, &result); err != nil {
		return false, fmt.Errorf("get invoices failed: %w", err)
	}

	for _, item := range result.Items {
		if fmt.Sprintf("%d", item.InvoiceID) == invoiceID {
			return item.Status == StatusPaid, nil
		}
	}
	return false, nil
}

// VerifyWebhookSignature checks the gateway's webhook HMAC: SHA-256 of
// the raw body keyed with SHA-256 of the API token, hex encoded.
func (c *Client) VerifyWebhookSignature(body []byte, signature string) bool {
	key := sha256.Sum256([]byte(c.config.APIToken))
	mac := hmac.New(sha256.New, key[:])
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (c *Client) doRequest(ctx context.Context, endpoint string, body, result interface{}) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		fullURL := c.config.BaseURL + "/" + endpoint

		method := http.MethodGet
		var reqBody io.Reader
		if body != nil {
			data, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal request body: %w", err)
			}
			method = http.MethodPost
			reqBody = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Crypto-Pay-API-Token", c.config.APIToken)

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
			return nil, fmt.Errorf("gateway error: status %d, body: %s", resp.StatusCode, string(respBody))
		}

		var envelope apiEnvelope
		if err := json.Unmarshal(respBody, &envelope); err != nil {
			return nil, fmt.Errorf("failed to unmarshal response: %w", err)
		}
		if !envelope.OK {
			return nil, fmt.Errorf("gateway rejected request: %s", string(envelope.Error))
		}
		if result != nil {
			if err := json.Unmarshal(envelope.Result, result); err != nil {
				return nil, fmt.Errorf("failed to unmarshal result: %w", err)
			}
		}
		return nil, nil
	})
	return err
}

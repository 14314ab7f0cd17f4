// Package freekassa is the client for the second card gateway. It
// builds hosted payment links, verifies the form-POST callback
// signature, and polls order status through the merchant API.
package freekassa

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/jetstore/store-service/pkg/logger"
)

// Config represents gateway credentials and endpoints
type Config struct {
	MerchantID string
	// Secret1 signs outbound payment links, Secret2 inbound callbacks.
	Secret1 string
	Secret2 string
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Client talks to the gateway
type Client struct {
	config     Config
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *logger.Logger
}

// Callback is the parsed form-POST notification
type Callback struct {
	MerchantID string
	Amount     string
	OrderID    string
	Sign       string
}

// Order statuses returned by the merchant API.
const (
	StatusNew  = 0
	StatusPaid = 1
)

// NewClient creates a new gateway client
func NewClient(config Config, log *logger.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.fk.life/v1"
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "freekassa",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
		}),
		logger: log,
	}
}

// PaymentLink builds the hosted checkout URL for an order. The link
// signature is md5(merchant:amount:secret1:currency:order).
func (c *Client) PaymentLink(orderID string, amountRUB decimal.Decimal) string {
	amount := amountRUB.StringFixed(2)
	sign := md5Hex(strings.Join([]string{
		c.config.MerchantID, amount, c.config.Secret1, "RUB", orderID,
	}, ":"))

	q := url.Values{
		"m":        {c.config.MerchantID},
		"oa":       {amount},
		"o":        {orderID},
		"currency": {"RUB"},
		"s":        {sign},
	}
	return "https://pay.fk.money/?" + q.Encode()
}

// VerifyCallback checks the callback signature
// md5(merchant:amount:secret2:order) in constant time.
func (c *Client) VerifyCallback(cb Callback) bool {
	expected := md5Hex(strings.Join([]string{
		cb.MerchantID, cb.Amount, c.config.Secret2, cb.OrderID,
	}, ":"))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(cb.Sign)))
}

// IsPaid polls the merchant API for the order's status
func (c *Client) IsPaid(ctx context.Context, orderID string) (bool, error) {
	nonce := time.Now().UnixNano()
	params := map[string]string{
		"shopId":    c.config.MerchantID,
		"nonce":     fmt.Sprintf("%d", nonce),
		"paymentId": orderID,
	}
	params["signature"] = c.sign(params)

	var result struct {
		Type   string `json:"type"`
		Orders []struct {
			MerchantOrderID string `json:"merchant_order_id"`
			Status          int    `json:"status"`
		} `json:"orders"`
	}
	if err := c.doRequest(ctx, "/orders", params, &result); err != nil {
		return false, fmt.Errorf("get orders failed: %w", err)
	}

	for _, order := range result.Orders {
		if order.MerchantOrderID == orderID {
			return order.Status == StatusPaid, nil
		}
	}
	return false, nil
}

// sign computes the merchant API signature: HMAC-SHA256 over the
// values of the sorted keys joined with "|".
func (c *Client) sign(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make([]string, 0, len(keys))
	for _, k := range keys {
		values = append(values, params[k])
	}

	mac := hmac.New(sha256.New, []byte(c.config.APIKey))
	mac.Write([]byte(strings.Join(values, "|")))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) doRequest(ctx context.Context, endpoint string, body, result interface{}) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+endpoint, bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

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

		if result != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, result); err != nil {
				return nil, fmt.Errorf("failed to unmarshal response: %w", err)
			}
		}
		return nil, nil
	})
	return err
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

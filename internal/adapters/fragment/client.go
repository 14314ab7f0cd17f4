// Package fragment drives the stars/premium gift flow: resolve the
// recipient, open a purchase request, and fetch the on-chain payment
// link that the custodial wallet then executes.
package fragment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/jetstore/store-service/pkg/logger"
)

// Config represents the session credentials
type Config struct {
	BaseURL string
	Cookie  string
	APIHash string
	Timeout time.Duration
}

// Client talks to the gift marketplace
type Client struct {
	config     Config
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *logger.Logger
}

// PayInstruction is the on-chain message that completes a purchase.
type PayInstruction struct {
	Address    string
	AmountNano int64
	PayloadB64 string
}

// NewClient creates a new marketplace client
func NewClient(config Config, log *logger.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = 20 * time.Second
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://fragment.com"
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "fragment",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
		}),
		logger: log,
	}
}

// ResolveStarsRecipient maps a handle to the marketplace recipient id.
func (c *Client) ResolveStarsRecipient(ctx context.Context, username string, quantity int) (string, error) {
	form := url.Values{
		"query":    {username},
		"quantity": {strconv.Itoa(quantity)},
		"method":   {"searchStarsRecipient"},
	}

	var result struct {
		Found *struct {
			Recipient string `json:"recipient"`
		} `json:"found"`
	}
	if err := c.doRequest(ctx, form, &result); err != nil {
		return "", fmt.Errorf("search stars recipient failed: %w", err)
	}
	if result.Found == nil || result.Found.Recipient == "" {
		return "", fmt.Errorf("recipient %q not found", username)
	}
	return result.Found.Recipient, nil
}

// BuyStarsInstruction opens a stars purchase and returns the payment
// message for the custodial wallet.
func (c *Client) BuyStarsInstruction(ctx context.Context, recipient string, quantity int) (*PayInstruction, error) {
	reqID, err := c.initRequest(ctx, url.Values{
		"recipient": {recipient},
		"quantity":  {strconv.Itoa(quantity)},
		"method":    {"initBuyStarsRequest"},
	})
	if err != nil {
		return nil, fmt.Errorf("init buy stars failed: %w", err)
	}
	return c.payLink(ctx, reqID, "getBuyStarsLink")
}

// ResolvePremiumRecipient maps a handle to the premium gift recipient id.
func (c *Client) ResolvePremiumRecipient(ctx context.Context, username string, months int) (string, error) {
	form := url.Values{
		"query":  {username},
		"months": {strconv.Itoa(months)},
		"method": {"searchPremiumGiftRecipient"},
	}

	var result struct {
		Found *struct {
			Recipient string `json:"recipient"`
		} `json:"found"`
	}
	if err := c.doRequest(ctx, form, &result); err != nil {
		return "", fmt.Errorf("search premium recipient failed: %w", err)
	}
	if result.Found == nil || result.Found.Recipient == "" {
		return "", fmt.Errorf("recipient %q not found", username)
	}
	return result.Found.Recipient, nil
}

// GiftPremiumInstruction opens a premium gift and returns the payment
// message for the custodial wallet.
func (c *Client) GiftPremiumInstruction(ctx context.Context, recipient string, months int) (*PayInstruction, error) {
	reqID, err := c.initRequest(ctx, url.Values{
		"recipient": {recipient},
		"months":    {strconv.Itoa(months)},
		"method":    {"initGiftPremiumRequest"},
	})
	if err != nil {
		return nil, fmt.Errorf("init gift premium failed: %w", err)
	}
	return c.payLink(ctx, reqID, "getGiftPremiumLink")
}

func (c *Client) initRequest(ctx context.Context, form url.Values) (string, error) {
	var result struct {
		ReqID string `json:"req_id"`
	}
	if err := c.doRequest(ctx, form, &result); err != nil {
		return "", err
	}
	if result.ReqID == "" {
		return "", fmt.Errorf("marketplace returned no request id")
	}
	return result.ReqID, nil
}

func (c *Client) payLink(ctx context.Context, reqID, method string) (*PayInstruction, error) {
	form := url.Values{
		"id":          {reqID},
		"show_sender": {"0"},
		"method":      {method},
	}

	var result struct {
		Transaction *struct {
			Messages []struct {
				Address string `json:"address"`
				Amount  int64  `json:"amount"`
				Payload string `json:"payload"`
			} `json:"messages"`
		} `json:"transaction"`
	}
	if err := c.doRequest(ctx, form, &result); err != nil {
		return nil, fmt.Errorf("%s failed: %w", method, err)
	}
	if result.Transaction == nil || len(result.Transaction.Messages) == 0 {
		return nil, fmt.Errorf("marketplace returned no payment message")
	}

	msg := result.Transaction.Messages[0]
	return &PayInstruction{
		Address:    msg.Address,
		AmountNano: msg.Amount,
		PayloadB64: msg.Payload,
	}, nil
}

func (c *Client) doRequest(ctx context.Context, form url.Values, result interface{}) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		fullURL := c.config.BaseURL + "/api?hash=" + c.config.APIHash

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Cookie", c.config.Cookie)

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
			return nil, fmt.Errorf("marketplace error: status %d, body: %s", resp.StatusCode, string(respBody))
		}

		var envelope struct {
			OK    bool   `json:"ok"`
			Error string `json:"error"`
		}
		if err := json.Unmarshal(respBody, &envelope); err != nil {
			return nil, fmt.Errorf("failed to unmarshal response: %w", err)
		}
		if !envelope.OK && envelope.Error != "" {
			return nil, fmt.Errorf("marketplace rejected request: %s", envelope.Error)
		}

		if err := json.Unmarshal(respBody, result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result: %w", err)
		}
		return nil, nil
	})
	return err
}

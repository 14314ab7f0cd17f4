// Package tonapi is the client for the TON chain indexer. The on-chain
// rail is confirmed by scanning the merchant account's recent transfer
// events for the order's correlation comment.
package tonapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/jetstore/store-service/pkg/logger"
)

// Config represents indexer endpoints and credentials
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client talks to the indexer
type Client struct {
	config     Config
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *logger.Logger
}

// TransferEvent is an incoming TON transfer observed on an account.
type TransferEvent struct {
	EventID    string
	Comment    string
	AmountNano int64
	Sender     string
}

// NewClient creates a new indexer client
func NewClient(config Config, log *logger.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = 20 * time.Second
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://tonapi.io"
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "tonapi",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
		}),
		logger: log,
	}
}

type accountEvents struct {
	Events []struct {
		EventID string `json:"event_id"`
		Actions []struct {
			Type        string `json:"type"`
			TonTransfer *struct {
				Amount  int64  `json:"amount"`
				Comment string `json:"comment"`
				Sender  struct {
					Address string `json:"address"`
				} `json:"sender"`
			} `json:"TonTransfer"`
		} `json:"actions"`
	} `json:"events"`
}

// AccountTransfers returns the latest incoming TON transfers on the
// account, newest first, flattened across events.
func (c *Client) AccountTransfers(ctx context.Context, account string, limit int) ([]TransferEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	endpoint := fmt.Sprintf("/v2/accounts/%s/events?limit=%d", account, limit)

	var payload accountEvents
	if err := c.doRequest(ctx, endpoint, &payload); err != nil {
		return nil, fmt.Errorf("account events failed: %w", err)
	}

	transfers := make([]TransferEvent, 0, len(payload.Events))
	for _, event := range payload.Events {
		for _, action := range event.Actions {
			if action.Type != "TonTransfer" || action.TonTransfer == nil {
				continue
			}
			transfers = append(transfers, TransferEvent{
				EventID:    event.EventID,
				Comment:    action.TonTransfer.Comment,
				AmountNano: action.TonTransfer.Amount,
				Sender:     action.TonTransfer.Sender.Address,
			})
		}
	}
	return transfers, nil
}

func (c *Client) doRequest(ctx context.Context, endpoint string, result interface{}) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		if c.config.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
		}

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
			return nil, fmt.Errorf("indexer error: status %d, body: %s", resp.StatusCode, string(respBody))
		}

		if err := json.Unmarshal(respBody, result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal response: %w", err)
		}
		return nil, nil
	})
	return err
}

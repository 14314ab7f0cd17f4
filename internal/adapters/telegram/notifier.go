// Package telegram posts operator tasks (manual top-up hand-offs,
// referral payout requests) to the configured bot chat.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jetstore/store-service/pkg/logger"
	"github.com/jetstore/store-service/pkg/retry"
)

// Config represents bot credentials
type Config struct {
	BotToken     string
	NotifyChatID int64
	BotUsername  string
	Timeout      time.Duration
}

// Notifier sends chat messages through the bot API
type Notifier struct {
	config     Config
	httpClient *http.Client
	logger     *logger.Logger
}

// NewNotifier creates a new notifier
func NewNotifier(config Config, log *logger.Logger) *Notifier {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	return &Notifier{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     log,
	}
}

// BotUsername returns the bot's public handle for deep links.
func (n *Notifier) BotUsername() string { return n.config.BotUsername }

// NotifyOperators posts text to the operator chat.
func (n *Notifier) NotifyOperators(ctx context.Context, text string) error {
	return n.sendMessage(ctx, n.config.NotifyChatID, text)
}

func (n *Notifier) sendMessage(ctx context.Context, chatID int64, text string) error {
	body := map[string]interface{}{
		"chat_id": chatID,
		"text":    text,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	endpoint := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.config.BotToken)

	return retry.Do(ctx, retry.DefaultPolicy(), func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("bot API error: status %d, body: %s", resp.StatusCode, string(respBody))
		}
		return nil
	})
}

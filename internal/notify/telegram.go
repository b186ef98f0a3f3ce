// Package notify implements the outbound alert collaborator: a thin Telegram
// Bot API client. Alerts are advisory only — every caller in the core treats
// a failed send as a logged warning, never as an operation failure.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// TelegramClient sends messages through the Telegram Bot API. The zero value
// is not usable; construct with NewTelegram.
type TelegramClient struct {
	// BotToken authenticates the bot.
	BotToken string
	// AdminChatID receives operator alerts sent via Notify.
	AdminChatID string
	// BaseURL is the API root, overridable in tests.
	BaseURL string
	// HTTPClient is the transport; a timeout-bounded default is applied.
	HTTPClient *http.Client
}

// NewTelegram constructs a TelegramClient against the public Bot API with a
// 10s request timeout.
func NewTelegram(botToken, adminChatID string) *TelegramClient {
	return &TelegramClient{
		BotToken:    botToken,
		AdminChatID: adminChatID,
		BaseURL:     "https://api.telegram.org",
		HTTPClient:  &http.Client{Timeout: 10 * time.Second},
	}
}

// sendMessageRequest is the Bot API sendMessage payload. ParseMode is HTML
// to match the formatted confirmation alerts.
type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

// Notify sends text to the configured admin chat. It is the services.Notifier
// implementation; callers swallow the returned error by design.
func (c *TelegramClient) Notify(ctx context.Context, text string) error {
	return c.send(ctx, c.AdminChatID, text)
}

// SendMessage sends text to an arbitrary chat, used by the webhook greeting.
func (c *TelegramClient) SendMessage(ctx context.Context, chatID int64, text string) error {
	return c.send(ctx, strconv.FormatInt(chatID, 10), text)
}

func (c *TelegramClient) send(ctx context.Context, chatID, text string) error {
	if c.BotToken == "" || chatID == "" {
		return fmt.Errorf("telegram: missing bot token or chat id")
	}

	payload, err := json.Marshal(sendMessageRequest{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", c.BaseURL, c.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram: sendMessage status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// AnnounceStartup posts a connectivity test alert to the admin chat so a
// fresh deployment proves its Telegram wiring immediately. Best effort.
func (c *TelegramClient) AnnounceStartup(ctx context.Context) {
	if err := c.Notify(ctx, "🚀 Server is live! Telegram notifications are connected."); err != nil {
		log.Warn().Err(err).Msg("telegram startup announcement failed")
	}
}

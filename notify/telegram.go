package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTelegramAPI is the Telegram Bot API base URL.
const DefaultTelegramAPI = "https://api.telegram.org"

// Telegram sends messages through a Telegram bot.
type Telegram struct {
	token   string
	baseURL string
	client  *http.Client
}

// NewTelegram creates a Telegram channel. An empty baseURL uses the public
// Bot API. Without a token the channel is never enabled.
func NewTelegram(token, baseURL string) *Telegram {
	if baseURL == "" {
		baseURL = DefaultTelegramAPI
	}
	return &Telegram{
		token:   token,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Enabled(r Recipient) bool {
	return t.token != "" && r.TelegramID != ""
}

// Send posts the message to the recipient's chat with Markdown formatting.
func (t *Telegram) Send(ctx context.Context, r Recipient, m Message) error {
	body, err := json.Marshal(telegramSendMessage{
		ChatID:    r.TelegramID,
		Text:      fmt.Sprintf("🔔 *%s*\n\n%s", m.Title, m.Body),
		ParseMode: "Markdown",
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		// The URL carries the bot token; keep it out of the error.
		return fmt.Errorf("telegram request failed: %w", unwrapURLError(err))
	}
	defer resp.Body.Close()

	var result telegramResponse
	raw, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("telegram returned status %d: %s", resp.StatusCode, string(raw))
	}
	if !result.OK {
		return fmt.Errorf("telegram returned status %d: %s", resp.StatusCode, result.Description)
	}
	return nil
}

// =============================================================================
// TELEGRAM API TYPES
// =============================================================================

type telegramSendMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

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

// DefaultLineAPI is the LINE Messaging API base URL.
const DefaultLineAPI = "https://api.line.me"

// Line pushes text messages through a LINE Official Account.
type Line struct {
	channelToken string
	baseURL      string
	client       *http.Client
}

// NewLine creates a LINE channel. Without a channel access token the
// channel is never enabled.
func NewLine(channelToken, baseURL string) *Line {
	if baseURL == "" {
		baseURL = DefaultLineAPI
	}
	return &Line{
		channelToken: channelToken,
		baseURL:      strings.TrimRight(baseURL, "/"),
		client:       &http.Client{Timeout: 10 * time.Second},
	}
}

func (l *Line) Name() string { return "line" }

func (l *Line) Enabled(r Recipient) bool {
	return l.channelToken != "" && r.LineUserID != ""
}

// Send pushes the message as a single text bubble.
func (l *Line) Send(ctx context.Context, r Recipient, m Message) error {
	body, err := json.Marshal(linePushRequest{
		To:       r.LineUserID,
		Messages: []lineMessage{{Type: "text", Text: "🔔 " + m.Text()}},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/v2/bot/message/push", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+l.channelToken)

	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("line request failed: %w", unwrapURLError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("line returned status %d: %s", resp.StatusCode, string(raw))
	}
	return nil
}

// =============================================================================
// LINE API TYPES
// =============================================================================

type linePushRequest struct {
	To       string        `json:"to"`
	Messages []lineMessage `json:"messages"`
}

type lineMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Transport sends formatted text to a destination topic. A rich-format
// rejection surfaces as a *FormatError so the caller can fall back to
// plain text.
type Transport interface {
	Send(ctx context.Context, topicID int64, text string, rich bool) error
}

// FormatError reports that the transport rejected the rich-formatted
// payload itself, as opposed to failing to deliver.
type FormatError struct {
	Description string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("transport rejected formatted message: %s", e.Description)
}

const telegramBaseURL = "https://api.telegram.org"

var _ Transport = (*TelegramClient)(nil)

// TelegramClient posts messages to forum topics of one Telegram group
// through the Bot API.
type TelegramClient struct {
	BaseURL    string // overridable for tests
	token      string
	groupID    string
	httpClient *http.Client
}

func NewTelegramClient(token, groupID string) *TelegramClient {
	return &TelegramClient{
		BaseURL:    telegramBaseURL,
		token:      token,
		groupID:    groupID,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type sendMessageRequest struct {
	ChatID          string `json:"chat_id"`
	MessageThreadID int64  `json:"message_thread_id,omitempty"`
	Text            string `json:"text"`
	ParseMode       string `json:"parse_mode,omitempty"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (c *TelegramClient) Send(ctx context.Context, topicID int64, text string, rich bool) error {
	payload := sendMessageRequest{
		ChatID:          c.groupID,
		MessageThreadID: topicID,
		Text:            text,
	}
	if rich {
		payload.ParseMode = "MarkdownV2"
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.BaseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode == http.StatusOK {
		return nil
	}

	var apiResp sendMessageResponse
	description := resp.Status
	if err := json.Unmarshal(respBody, &apiResp); err == nil && apiResp.Description != "" {
		description = apiResp.Description
	}

	// A 400 on a MarkdownV2 payload means the formatting itself was
	// rejected; anything else is a plain delivery failure.
	if rich && resp.StatusCode == http.StatusBadRequest {
		return &FormatError{Description: description}
	}

	return fmt.Errorf("telegram returned HTTP %d: %s", resp.StatusCode, description)
}

package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const defaultAPIBase = "https://api.telegram.org"

// Client is a minimal Telegram Bot API client. It also serves as the direct
// Notifier for distributions.
type Client struct {
	token  string
	httpc  *http.Client
	apiURL string
}

func NewClient(token string) *Client {
	return NewClientWithBase(token, defaultAPIBase)
}

// NewClientWithBase targets a different API host, e.g. a local Bot API server.
func NewClientWithBase(token, base string) *Client {
	return &Client{
		token:  token,
		apiURL: strings.TrimRight(base, "/") + "/bot" + token,
		httpc:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) Enabled() bool { return c != nil && c.token != "" }

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (c *Client) send(ctx context.Context, method string, payload any) error {
	if !c.Enabled() {
		return errors.New("telegram: no bot token configured")
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/"+method, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var out apiResponse
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if resp.StatusCode >= 300 || !out.OK {
		if out.Description != "" {
			return fmt.Errorf("telegram %s: %s: %s", method, resp.Status, out.Description)
		}
		return fmt.Errorf("telegram %s: %s", method, resp.Status)
	}
	return nil
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, replyMarkup any) error {
	data := map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	if replyMarkup != nil {
		data["reply_markup"] = replyMarkup
	}
	return c.send(ctx, "sendMessage", data)
}

// SetWebhook points the bot at url; Telegram echoes secret back in the
// X-Telegram-Bot-Api-Secret-Token header.
func (c *Client) SetWebhook(ctx context.Context, url, secret string) error {
	data := map[string]any{"url": url}
	if secret != "" {
		data["secret_token"] = secret
	}
	return c.send(ctx, "setWebhook", data)
}

// Deliver sends plain text to a numeric chat id.
func (c *Client) Deliver(ctx context.Context, recipient, text string) error {
	chatID, err := strconv.ParseInt(strings.TrimSpace(recipient), 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: recipient %q is not a chat id", recipient)
	}
	return c.send(ctx, "sendMessage", map[string]any{"chat_id": chatID, "text": text})
}

package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramTransport mirrors sink events to a Telegram chat via the bot API.
type TelegramTransport struct {
	token   string
	chatID  string
	apiBase string
	client  *http.Client
}

// NewTelegramTransport builds a transport for the given bot token and chat.
func NewTelegramTransport(token, chatID string) *TelegramTransport {
	return &TelegramTransport{
		token:   token,
		chatID:  chatID,
		apiBase: telegramAPIBase,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts the message to the sendMessage endpoint. Any non-2xx response is
// an error; the caller decides whether to swallow it.
func (t *TelegramTransport) Send(ctx context.Context, text string) error {
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token)
	form := url.Values{
		"chat_id":    {t.chatID},
		"text":       {text},
		"parse_mode": {"HTML"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("telegram api status %d", resp.StatusCode)
	}
	return nil
}

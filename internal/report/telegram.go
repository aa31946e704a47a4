package report

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultTelegramBaseURL = "https://api.telegram.org"
	DefaultAlertTimeout    = 10 * time.Second
)

// TelegramCredentials identify the bot and the chat that receives alerts.
type TelegramCredentials struct {
	BotToken string
	ChatID   string
}

// CredentialSource loads credentials at send time, so a config problem
// only matters when an alert is actually raised.
type CredentialSource func() (TelegramCredentials, error)

// TelegramDispatcher sends alerts through the Telegram Bot API.
type TelegramDispatcher struct {
	Credentials CredentialSource
	BaseURL     string
	Client      *http.Client
	Timeout     time.Duration
}

// NewTelegramDispatcher returns a dispatcher with default endpoint and
// timeout.
func NewTelegramDispatcher(src CredentialSource) *TelegramDispatcher {
	return &TelegramDispatcher{
		Credentials: src,
		BaseURL:     DefaultTelegramBaseURL,
		Client:      &http.Client{},
		Timeout:     DefaultAlertTimeout,
	}
}

// Send posts text once. It returns ErrConfigRead or ErrMissingCredentials
// (wrapped) without touching the network when credentials are unusable.
func (d *TelegramDispatcher) Send(ctx context.Context, text string) error {
	if d.Credentials == nil {
		return ErrMissingCredentials
	}
	creds, err := d.Credentials()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfigRead, err)
	}
	if creds.BotToken == "" || creds.ChatID == "" {
		return ErrMissingCredentials
	}

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultAlertTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	base := strings.TrimRight(d.BaseURL, "/")
	if base == "" {
		base = DefaultTelegramBaseURL
	}
	form := url.Values{}
	form.Set("chat_id", creds.ChatID)
	form.Set("text", text)
	form.Set("disable_web_page_preview", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/bot"+creds.BotToken+"/sendMessage", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("telegram sendMessage: unexpected status %d", resp.StatusCode)
	}
	return nil
}

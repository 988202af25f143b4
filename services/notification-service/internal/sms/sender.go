package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type Sender interface {
	Send(ctx context.Context, to, body string) error
	ProviderID() string
}

// New picks a sender by provider name: "webhook" or "noop".
func New(provider, url, token string, timeout time.Duration) (Sender, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", "noop":
		return NewNoopSender(), nil
	case "webhook":
		if strings.TrimSpace(url) == "" {
			return nil, errors.New("SMS_WEBHOOK_URL is required for the webhook provider")
		}
		return NewWebhookSender(url, token, timeout), nil
	default:
		return nil, fmt.Errorf("unknown sms provider %q", provider)
	}
}

// WebhookSender posts {"to","body"} as JSON to an SMS gateway.
type WebhookSender struct {
	url   string
	token string
	http  *http.Client
}

func NewWebhookSender(url, token string, timeout time.Duration) *WebhookSender {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookSender{
		url:   strings.TrimSpace(url),
		token: strings.TrimSpace(token),
		http:  &http.Client{Timeout: timeout},
	}
}

func (s *WebhookSender) ProviderID() string {
	return "sms-webhook"
}

func (s *WebhookSender) Send(ctx context.Context, to, body string) error {
	raw, err := json.Marshal(map[string]string{"to": to, "body": body})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sms webhook returned %d", resp.StatusCode)
	}
	return nil
}

type NoopSender struct{}

func NewNoopSender() *NoopSender {
	return &NoopSender{}
}

func (s *NoopSender) ProviderID() string {
	return "sms-noop"
}

func (s *NoopSender) Send(context.Context, string, string) error {
	return nil
}

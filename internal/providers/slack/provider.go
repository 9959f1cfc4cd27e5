// Package slack posts alert notifications to an incoming webhook. Delivery is
// best effort: the caller logs failures and moves on.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/atolldev/billscan/internal/config"
	"go.uber.org/zap"
)

type Provider interface {
	PostMessage(ctx context.Context, message string) error
}

type NoOpProvider struct{}

func (p *NoOpProvider) PostMessage(ctx context.Context, message string) error {
	return nil
}

// WebhookProvider sends messages to a Slack incoming webhook URL.
type WebhookProvider struct {
	httpClient *http.Client
	webhookURL string
	log        *zap.Logger
}

// NewProvider returns the webhook provider when a URL is configured and the
// no-op provider otherwise, so callers never have to nil-check.
func NewProvider(cfg config.Config, logger *zap.Logger) Provider {
	if cfg.SlackWebhookURL == "" {
		return &NoOpProvider{}
	}
	return &WebhookProvider{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		webhookURL: cfg.SlackWebhookURL,
		log:        logger.Named("providers.slack"),
	}
}

func (p *WebhookProvider) PostMessage(ctx context.Context, message string) error {
	payload, err := json.Marshal(map[string]string{"text": message})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("slack: webhook returned status %d", resp.StatusCode)
	}
	return nil
}

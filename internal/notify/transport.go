package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"arrdeck-go/internal/config"
)

// WebhookPusher delivers notifications as JSON POSTs to a user-configured
// endpoint (ntfy, gotify, or anything that accepts a JSON body).
type WebhookPusher struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// NewWebhookPusher builds a pusher for the given endpoint URL.
func NewWebhookPusher(url string, logger *zap.Logger) *WebhookPusher {
	return &WebhookPusher{
		url:    url,
		client: &http.Client{Timeout: config.PushTimeout},
		logger: logger,
	}
}

// Push sends one notification.
func (p *WebhookPusher) Push(ctx context.Context, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	p.logger.Debug("Webhook notification sent", zap.String("title", msg.Title))
	return nil
}

// MultiPusher fans one notification out to several transports. A transport
// failure is reported but does not stop the others.
type MultiPusher struct {
	pushers []Pusher
	logger  *zap.Logger
}

// NewMultiPusher bundles transports; nil entries are skipped.
func NewMultiPusher(logger *zap.Logger, pushers ...Pusher) *MultiPusher {
	m := &MultiPusher{logger: logger}
	for _, p := range pushers {
		if p != nil {
			m.pushers = append(m.pushers, p)
		}
	}
	return m
}

// Push delivers through every transport, returning the last error seen.
func (m *MultiPusher) Push(ctx context.Context, msg *Message) error {
	var lastErr error
	for _, p := range m.pushers {
		if err := p.Push(ctx, msg); err != nil {
			m.logger.Warn("Push transport failed", zap.Error(err))
			lastErr = err
		}
	}
	return lastErr
}

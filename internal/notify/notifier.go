package notify

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/Dipuraj1New/careerireland-portals/internal/config"
)

// Notification is a user-facing alert about a submission outcome.
type Notification struct {
	UserID  string            `json:"userId"`
	Title   string            `json:"title"`
	Message string            `json:"message"`
	Type    string            `json:"type"`
	Data    map[string]string `json:"data,omitempty"`
}

// Notifier delivers user notifications. Delivery failures never abort core
// flow; callers log and continue.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

const defaultNotifyTimeout = 10 * time.Second

// WebhookNotifier posts notifications to the case management application's
// notification endpoint.
type WebhookNotifier struct {
	client   *resty.Client
	endpoint string
	log      *zap.Logger
}

func NewWebhookNotifier(cfg config.NotifierConfig, logger *zap.Logger) (*WebhookNotifier, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("notifier endpoint is required")
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("invalid notifier endpoint: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultNotifyTimeout
	}
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRetryCount(0)

	return &WebhookNotifier{
		client:   client,
		endpoint: endpoint,
		log:      logger.Named("notifier"),
	}, nil
}

func (w *WebhookNotifier) Send(ctx context.Context, n Notification) error {
	resp, err := w.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(n).
		Post(w.endpoint)
	if err != nil {
		return fmt.Errorf("notification request failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("notification endpoint returned %s", resp.Status())
	}
	w.log.Debug("Notification delivered.",
		zap.String("user_id", n.UserID), zap.String("type", n.Type))
	return nil
}

// NopNotifier drops notifications. Used when no endpoint is configured.
type NopNotifier struct{}

func (NopNotifier) Send(context.Context, Notification) error { return nil }

package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/metrics"
	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/retry"
)

const (
	deliveryAttempts  = 3
	deliveryBaseDelay = 500 * time.Millisecond
)

// errRejected marks a 4xx response from the delivery service.
var errRejected = errors.New("notification rejected by receiver")

// WebhookSink POSTs notifications to an external delivery service
// (mail gateway, push relay, in-app inbox). Payloads are HMAC-signed when a
// secret is configured so the receiver can verify origin. Transient failures
// are retried with backoff; 4xx responses are not.
type WebhookSink struct {
	url    string
	secret string
	client *http.Client
	logger *slog.Logger
}

// NewWebhookSink creates a webhook-backed notification sink.
func NewWebhookSink(url, secret string, logger *slog.Logger) *WebhookSink {
	return &WebhookSink{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

func (s *WebhookSink) Send(ctx context.Context, n *Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		metrics.NotificationDeliveriesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	err = retry.Do(ctx, deliveryAttempts, deliveryBaseDelay, func() error {
		return s.deliver(ctx, n, payload)
	})
	if err != nil {
		if errors.Is(err, errRejected) {
			metrics.NotificationDeliveriesTotal.WithLabelValues("rejected").Inc()
		} else {
			metrics.NotificationDeliveriesTotal.WithLabelValues("error").Inc()
		}
		return err
	}

	metrics.NotificationDeliveriesTotal.WithLabelValues("delivered").Inc()
	s.logger.Debug("notification delivered", "type", n.Type, "recipient", n.Recipient)
	return nil
}

func (s *WebhookSink) deliver(ctx context.Context, n *Notification, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Blockvest-Event", string(n.Type))
	req.Header.Set("X-Blockvest-Timestamp", fmt.Sprintf("%d", n.CreatedAt.Unix()))
	if s.secret != "" {
		req.Header.Set("X-Blockvest-Signature", s.sign(payload))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("notification delivery failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		// The receiver rejected the payload; retrying will not help.
		return retry.Permanent(fmt.Errorf("%w: status %d", errRejected, resp.StatusCode))
	}
	return fmt.Errorf("notification delivery returned status %d", resp.StatusCode)
}

func (s *WebhookSink) sign(payload []byte) string {
	h := hmac.New(sha256.New, []byte(s.secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

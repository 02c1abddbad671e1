// Package notify delivers breach and adjustment events to a tenant
// webhook. Delivery is best-effort: a rate limiter sheds bursts and a
// circuit breaker stops hammering a dead endpoint.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/retinalabs/retina/internal/persistence"
)

// Event types carried in the webhook payload.
const (
	EventViolation  = "guardrail.violation"
	EventAdjustment = "guardrail.adjustment"
)

// Payload is the webhook body for one event.
type Payload struct {
	Event      string                            `json:"event"`
	Guardrail  persistence.Guardrail             `json:"guardrail"`
	Violation  *persistence.GuardrailViolation   `json:"violation,omitempty"`
	Adjustment *persistence.AutoAdjustmentRecord `json:"adjustment,omitempty"`
	SentAt     time.Time                         `json:"sentAt"`
}

// WebhookNotifier posts guardrail events to a single endpoint.
type WebhookNotifier struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// NewWebhook creates a notifier for the given endpoint.
func NewWebhook(url string, timeout time.Duration, ratePerSec float64, burst int) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "guardrail-webhook",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("webhook circuit breaker state change")
		},
	})
	return &WebhookNotifier{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		breaker: breaker,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst),
	}
}

// NotifyViolation posts a breach event.
func (n *WebhookNotifier) NotifyViolation(ctx context.Context, g persistence.Guardrail, v persistence.GuardrailViolation) error {
	return n.post(ctx, Payload{
		Event:     EventViolation,
		Guardrail: g,
		Violation: &v,
	})
}

// NotifyAdjustment posts a threshold-change event.
func (n *WebhookNotifier) NotifyAdjustment(ctx context.Context, g persistence.Guardrail, rec persistence.AutoAdjustmentRecord) error {
	return n.post(ctx, Payload{
		Event:      EventAdjustment,
		Guardrail:  g,
		Adjustment: &rec,
	})
}

func (n *WebhookNotifier) post(ctx context.Context, p Payload) error {
	// Shed rather than block: the control loop must not stall on a slow
	// or chatty notification channel.
	if !n.limiter.Allow() {
		return fmt.Errorf("webhook rate limit exceeded, dropping %s event", p.Event)
	}

	p.SentAt = time.Now().UTC()
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	_, err = n.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("webhook returned status %d", resp.StatusCode)
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("deliver %s event: %w", p.Event, err)
	}
	return nil
}

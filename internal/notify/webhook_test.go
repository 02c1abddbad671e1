package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retinalabs/retina/internal/persistence"
)

func testGuardrail() persistence.Guardrail {
	return persistence.Guardrail{
		ID:             "gr-1",
		TenantID:       "acme",
		DecisionID:     "dec-1",
		OptionID:       "opt-a",
		MetricName:     "cvar95",
		Direction:      persistence.DirectionAbove,
		ThresholdValue: 100,
	}
}

func TestWebhookDeliversViolation(t *testing.T) {
	var got Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhook(srv.URL, time.Second, 100, 10)
	v := persistence.GuardrailViolation{ID: "v-1", GuardrailID: "gr-1", ActualValue: 120, Severity: "moderate"}
	require.NoError(t, n.NotifyViolation(context.Background(), testGuardrail(), v))

	assert.Equal(t, EventViolation, got.Event)
	require.NotNil(t, got.Violation)
	assert.Equal(t, "v-1", got.Violation.ID)
	assert.Nil(t, got.Adjustment)
	assert.False(t, got.SentAt.IsZero())
}

func TestWebhookDeliversAdjustment(t *testing.T) {
	var got Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	n := NewWebhook(srv.URL, time.Second, 100, 10)
	rec := persistence.AutoAdjustmentRecord{ID: "adj-1", GuardrailID: "gr-1", OldThreshold: 100, NewThreshold: 90}
	require.NoError(t, n.NotifyAdjustment(context.Background(), testGuardrail(), rec))

	assert.Equal(t, EventAdjustment, got.Event)
	require.NotNil(t, got.Adjustment)
	assert.Equal(t, 90.0, got.Adjustment.NewThreshold)
}

func TestWebhookErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewWebhook(srv.URL, time.Second, 100, 10)
	err := n.NotifyViolation(context.Background(), testGuardrail(), persistence.GuardrailViolation{})
	assert.Error(t, err)
}

func TestWebhookRateLimitSheds(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	// Burst of 1 at a negligible refill rate: the second call must shed.
	n := NewWebhook(srv.URL, time.Second, 0.001, 1)
	require.NoError(t, n.NotifyViolation(context.Background(), testGuardrail(), persistence.GuardrailViolation{}))
	err := n.NotifyViolation(context.Background(), testGuardrail(), persistence.GuardrailViolation{})
	assert.Error(t, err)
	assert.Equal(t, int64(1), hits.Load())
}

func TestWebhookBreakerOpensOnRepeatedFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhook(srv.URL, time.Second, 1000, 1000)
	for i := 0; i < 5; i++ {
		_ = n.NotifyViolation(context.Background(), testGuardrail(), persistence.GuardrailViolation{})
	}
	// Breaker is open now: the request is refused before reaching the server.
	err := n.NotifyViolation(context.Background(), testGuardrail(), persistence.GuardrailViolation{})
	assert.Error(t, err)
}

package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreGuardrailLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	g := Guardrail{
		ID:             "gr-1",
		TenantID:       "acme",
		DecisionID:     "dec-1",
		OptionID:       "opt-a",
		MetricName:     "cvar95",
		Direction:      DirectionAbove,
		ThresholdValue: 500,
		AlertLevel:     AlertCaution,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, store.Guardrails().Insert(ctx, g))

	got, err := store.Guardrails().Get(ctx, "gr-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 500.0, got.ThresholdValue)

	found, err := store.Guardrails().Find(ctx, "dec-1", "opt-a", "cvar95")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "gr-1", found.ID)

	missing, err := store.Guardrails().Find(ctx, "dec-1", "opt-a", "raroc")
	require.NoError(t, err)
	assert.Nil(t, missing, "unknown metric must return nil, not error")

	later := now.Add(time.Hour)
	require.NoError(t, store.Guardrails().UpdateThreshold(ctx, "gr-1", 475, later))
	got, err = store.Guardrails().Get(ctx, "gr-1")
	require.NoError(t, err)
	assert.Equal(t, 475.0, got.ThresholdValue)
	assert.Equal(t, later, got.UpdatedAt)

	err = store.Guardrails().UpdateThreshold(ctx, "gr-missing", 1, later)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreViolationsOrderedOldestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	// Insert out of chronological order.
	for i, offset := range []time.Duration{48 * time.Hour, 0, 24 * time.Hour} {
		v := GuardrailViolation{
			ID:          string(rune('a' + i)),
			GuardrailID: "gr-1",
			ActualValue: 600,
			Severity:    "minor",
			ViolatedAt:  base.Add(offset),
		}
		require.NoError(t, store.Violations().Insert(ctx, v))
	}

	got, err := store.Violations().ListSince(ctx, "gr-1", base)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := 1; i < len(got); i++ {
		assert.False(t, got[i].ViolatedAt.Before(got[i-1].ViolatedAt), "must be oldest first")
	}

	// Cutoff excludes the oldest.
	got, err = store.Violations().ListSince(ctx, "gr-1", base.Add(12*time.Hour))
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestMemoryStoreResolveViolation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	at := time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC)

	v := GuardrailViolation{ID: "v-1", GuardrailID: "gr-1", ViolatedAt: at}
	require.NoError(t, store.Violations().Insert(ctx, v))
	require.NoError(t, store.Violations().Resolve(ctx, "v-1", at.Add(time.Hour)))

	got, err := store.Violations().ListSince(ctx, "gr-1", time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].ResolvedAt)
	assert.Equal(t, at.Add(time.Hour), *got[0].ResolvedAt)

	assert.ErrorIs(t, store.Violations().Resolve(ctx, "v-nope", at), ErrNotFound)
}

func TestMemoryStoreAdjustmentsAppendOnly(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	at := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		rec := AutoAdjustmentRecord{
			ID:           string(rune('x' + i)),
			GuardrailID:  "gr-1",
			OldThreshold: 500 - float64(i)*25,
			NewThreshold: 475 - float64(i)*25,
			AdjustedAt:   at.Add(time.Duration(i) * time.Hour),
		}
		require.NoError(t, store.Adjustments().Insert(ctx, rec))
	}

	recs, err := store.Adjustments().ListByGuardrail(ctx, "gr-1")
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, 500.0, recs[0].OldThreshold, "insertion order preserved")
	assert.Equal(t, 425.0, recs[2].NewThreshold)
}

func TestMemoryStoreTenantConfig(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	cfg, err := store.TenantConfigs().GetAutoAdjust(ctx, "acme")
	require.NoError(t, err)
	assert.Nil(t, cfg, "missing tenant config returns nil, caller applies defaults")

	want := AutoAdjustConfig{
		BreachWindowDays:     30,
		BreachThresholdCount: 3,
		TighteningPercent:    10,
	}
	require.NoError(t, store.TenantConfigs().UpsertAutoAdjust(ctx, "acme", want))

	cfg, err = store.TenantConfigs().GetAutoAdjust(ctx, "acme")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, want, *cfg)
}

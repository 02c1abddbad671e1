// Package guardrail runs the breach detection and auto-adjust loop, a
// feedback controller over per-decision metric thresholds. Each breach
// appends an immutable violation record; enough breaches inside the
// rolling window tighten the threshold through an audited adjustment
// trail.
package guardrail

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/retinalabs/retina/internal/persistence"
)

// Notifier receives breach and adjustment events. Delivery failures are
// logged, never propagated into the control loop.
type Notifier interface {
	NotifyViolation(ctx context.Context, g persistence.Guardrail, v persistence.GuardrailViolation) error
	NotifyAdjustment(ctx context.Context, g persistence.Guardrail, rec persistence.AutoAdjustmentRecord) error
}

// Outcome is one observed actual value for a (decision, option, metric).
type Outcome struct {
	TenantID   string  `json:"tenantId"`
	DecisionID string  `json:"decisionId"`
	OptionID   string  `json:"optionId"`
	MetricName string  `json:"metricName"`
	Actual     float64 `json:"actual"`
	Source     string  `json:"source"`
}

// ProcessResult reports what one outcome observation produced. Violation
// and Adjustment are nil when the outcome did not breach, or breached
// without tripping the adjustment trigger.
type ProcessResult struct {
	Guardrail  *persistence.Guardrail            `json:"guardrail"`
	Violation  *persistence.GuardrailViolation   `json:"violation,omitempty"`
	Adjustment *persistence.AutoAdjustmentRecord `json:"adjustment,omitempty"`
}

// BatchResult pairs one batch entry with its result or error.
type BatchResult struct {
	Outcome Outcome
	Result  *ProcessResult
	Err     error
}

// DefaultAutoAdjustConfig returns the loop defaults applied when a
// tenant has no stored configuration.
func DefaultAutoAdjustConfig() persistence.AutoAdjustConfig {
	return persistence.AutoAdjustConfig{
		BreachWindowDays:     30,
		BreachThresholdCount: 2,
		TighteningPercent:    10,
		NotifyOnViolation:    true,
		NotifyOnAdjustment:   true,
	}
}

// Engine is the guardrail control loop. Safe for concurrent use; work on
// the same guardrail is serialized, different guardrails proceed in
// parallel.
type Engine struct {
	store    persistence.Store
	notifier Notifier
	defaults persistence.AutoAdjustConfig

	now   func() time.Time
	newID func() string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEngine creates a guardrail engine. notifier may be nil.
func NewEngine(store persistence.Store, notifier Notifier) *Engine {
	return &Engine{
		store:    store,
		notifier: notifier,
		defaults: DefaultAutoAdjustConfig(),
		now:      time.Now,
		newID:    uuid.NewString,
		locks:    make(map[string]*sync.Mutex),
	}
}

// ProcessActualOutcome runs one observation through the loop. A missing
// guardrail is a no-op: (nil, nil), so unmatched outcomes in a batch
// cannot disturb the matched ones.
func (e *Engine) ProcessActualOutcome(ctx context.Context, o Outcome) (*ProcessResult, error) {
	g, err := e.store.Guardrails().Find(ctx, o.DecisionID, o.OptionID, o.MetricName)
	if err != nil {
		return nil, fmt.Errorf("find guardrail: %w", err)
	}
	if g == nil {
		return nil, nil
	}

	lock := e.lockFor(g.ID)
	lock.Lock()
	defer lock.Unlock()

	// Re-read under the lock: a concurrent adjustment may have moved the
	// threshold between Find and here.
	g, err = e.store.Guardrails().Get(ctx, g.ID)
	if err != nil {
		return nil, fmt.Errorf("reload guardrail: %w", err)
	}
	if g == nil {
		return nil, nil
	}

	if g.Direction != persistence.DirectionAbove && g.Direction != persistence.DirectionBelow {
		return nil, fmt.Errorf("guardrail %s has unknown direction %q", g.ID, g.Direction)
	}

	if !breached(g.Direction, o.Actual, g.ThresholdValue) {
		return &ProcessResult{Guardrail: g}, nil
	}

	cfg := e.configFor(ctx, o.TenantID)
	now := e.now()
	windowStart := now.AddDate(0, 0, -cfg.BreachWindowDays)

	prior, err := e.store.Violations().ListSince(ctx, g.ID, windowStart)
	if err != nil {
		return nil, fmt.Errorf("list violations: %w", err)
	}
	priorSevere := 0
	for _, v := range prior {
		if v.Severity == SeveritySevere || v.Severity == SeverityCritical {
			priorSevere++
		}
	}

	pct := breachPercent(o.Actual, g.ThresholdValue)
	severity := severityFor(pct, priorSevere)

	violation := persistence.GuardrailViolation{
		ID:            e.newID(),
		GuardrailID:   g.ID,
		ActualValue:   o.Actual,
		BreachPercent: pct,
		Severity:      severity,
		Source:        o.Source,
		ViolatedAt:    now,
	}
	if err := e.store.Violations().Insert(ctx, violation); err != nil {
		return nil, fmt.Errorf("record violation: %w", err)
	}

	log.Warn().
		Str("guardrail_id", g.ID).
		Str("metric", g.MetricName).
		Float64("actual", o.Actual).
		Float64("threshold", g.ThresholdValue).
		Str("severity", severity).
		Msg("guardrail breached")

	if cfg.NotifyOnViolation && e.notifier != nil {
		if err := e.notifier.NotifyViolation(ctx, *g, violation); err != nil {
			log.Error().Err(err).Str("guardrail_id", g.ID).Msg("violation notification failed")
		}
	}

	result := &ProcessResult{Guardrail: g, Violation: &violation}
	if len(prior)+1 < cfg.BreachThresholdCount {
		return result, nil
	}

	adjustment, err := e.adjust(ctx, g, cfg, severity, append(prior, violation), now)
	if err != nil {
		return nil, err
	}
	result.Adjustment = adjustment
	updated := *g
	updated.ThresholdValue = adjustment.NewThreshold
	updated.UpdatedAt = now
	result.Guardrail = &updated
	return result, nil
}

// adjust tightens the threshold and appends the audit record. Above
// guardrails tighten downward, below guardrails upward; either way the
// limit gets stricter. The step is sized by the threshold magnitude so
// negative thresholds move in the strict direction too.
func (e *Engine) adjust(ctx context.Context, g *persistence.Guardrail, cfg persistence.AutoAdjustConfig, severity string, triggering []persistence.GuardrailViolation, now time.Time) (*persistence.AutoAdjustmentRecord, error) {
	pct := tighteningFor(severity, cfg.SeverityBasedAdjustment, cfg.SeverityTightening, cfg.TighteningPercent)

	step := math.Abs(g.ThresholdValue) * pct / 100
	newThreshold := g.ThresholdValue - step
	if g.Direction == persistence.DirectionBelow {
		newThreshold = g.ThresholdValue + step
	}

	ids := make([]string, 0, len(triggering))
	for _, v := range triggering {
		ids = append(ids, v.ID)
	}
	rec := persistence.AutoAdjustmentRecord{
		ID:                e.newID(),
		GuardrailID:       g.ID,
		OldThreshold:      g.ThresholdValue,
		NewThreshold:      newThreshold,
		AdjustmentPercent: pct,
		Severity:          severity,
		ViolationIDs:      ids,
		AdjustedAt:        now,
	}
	if err := e.store.Adjustments().Insert(ctx, rec); err != nil {
		return nil, fmt.Errorf("record adjustment: %w", err)
	}
	if err := e.store.Guardrails().UpdateThreshold(ctx, g.ID, newThreshold, now); err != nil {
		return nil, fmt.Errorf("update threshold: %w", err)
	}

	log.Info().
		Str("guardrail_id", g.ID).
		Float64("old_threshold", rec.OldThreshold).
		Float64("new_threshold", rec.NewThreshold).
		Float64("adjustment_pct", pct).
		Str("severity", severity).
		Msg("guardrail threshold auto-adjusted")

	if cfg.NotifyOnAdjustment && e.notifier != nil {
		if err := e.notifier.NotifyAdjustment(ctx, *g, rec); err != nil {
			log.Error().Err(err).Str("guardrail_id", g.ID).Msg("adjustment notification failed")
		}
	}
	return &rec, nil
}

// ProcessBatch runs a batch of outcomes with per-entity isolation: one
// failing entry never aborts or rolls back the others.
func (e *Engine) ProcessBatch(ctx context.Context, outcomes []Outcome) []BatchResult {
	results := make([]BatchResult, len(outcomes))
	for i, o := range outcomes {
		res, err := e.ProcessActualOutcome(ctx, o)
		results[i] = BatchResult{Outcome: o, Result: res, Err: err}
	}
	return results
}

// ResolveViolation stamps a violation resolved at the current time.
func (e *Engine) ResolveViolation(ctx context.Context, violationID string) error {
	return e.store.Violations().Resolve(ctx, violationID, e.now())
}

func (e *Engine) configFor(ctx context.Context, tenantID string) persistence.AutoAdjustConfig {
	cfg, err := e.store.TenantConfigs().GetAutoAdjust(ctx, tenantID)
	if err != nil {
		log.Error().Err(err).Str("tenant", tenantID).Msg("tenant auto-adjust config load failed, using defaults")
		return e.defaults
	}
	if cfg == nil {
		return e.defaults
	}
	merged := *cfg
	if merged.BreachWindowDays <= 0 {
		merged.BreachWindowDays = e.defaults.BreachWindowDays
	}
	if merged.BreachThresholdCount <= 0 {
		merged.BreachThresholdCount = e.defaults.BreachThresholdCount
	}
	if merged.TighteningPercent <= 0 {
		merged.TighteningPercent = e.defaults.TighteningPercent
	}
	return merged
}

func (e *Engine) lockFor(id string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[id]
	if !ok {
		l = &sync.Mutex{}
		e.locks[id] = l
	}
	return l
}

func breached(direction string, actual, threshold float64) bool {
	if direction == persistence.DirectionBelow {
		return actual < threshold
	}
	return actual > threshold
}

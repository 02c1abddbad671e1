// Package persistence defines the storage ports for guardrail state and
// audit history. The guardrail loop stays pure logic over these
// interfaces; backends (Postgres, in-memory) implement them.
package persistence

import (
	"context"
	"time"
)

// Guardrail direction values.
const (
	DirectionAbove = "above"
	DirectionBelow = "below"
)

// Alert levels assignable to a guardrail.
const (
	AlertInfo     = "info"
	AlertCaution  = "caution"
	AlertCritical = "critical"
)

// Guardrail is a per-decision, per-option metric threshold. Created by
// users or templates; its threshold is mutated only through the
// auto-adjust audit trail, never silently.
type Guardrail struct {
	ID             string    `json:"id" db:"id"`
	TenantID       string    `json:"tenant_id" db:"tenant_id"`
	DecisionID     string    `json:"decision_id" db:"decision_id"`
	OptionID       string    `json:"option_id" db:"option_id"`
	MetricName     string    `json:"metric_name" db:"metric_name"`
	Direction      string    `json:"direction" db:"direction"`
	ThresholdValue float64   `json:"threshold_value" db:"threshold_value"`
	AlertLevel     string    `json:"alert_level" db:"alert_level"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// GuardrailViolation is an immutable breach record. Corrections append
// (ResolvedAt); the row itself is never rewritten.
type GuardrailViolation struct {
	ID            string     `json:"id" db:"id"`
	GuardrailID   string     `json:"guardrail_id" db:"guardrail_id"`
	ActualValue   float64    `json:"actual_value" db:"actual_value"`
	BreachPercent float64    `json:"breach_percent" db:"breach_percent"`
	Severity      string     `json:"severity" db:"severity"`
	Source        string     `json:"source" db:"source"`
	ViolatedAt    time.Time  `json:"violated_at" db:"violated_at"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
}

// AutoAdjustmentRecord is the immutable audit record of one threshold
// change, the only persistence of why a threshold moved.
type AutoAdjustmentRecord struct {
	ID                string    `json:"id" db:"id"`
	GuardrailID       string    `json:"guardrail_id" db:"guardrail_id"`
	OldThreshold      float64   `json:"old_threshold" db:"old_threshold"`
	NewThreshold      float64   `json:"new_threshold" db:"new_threshold"`
	AdjustmentPercent float64   `json:"adjustment_percent" db:"adjustment_percent"`
	Severity          string    `json:"severity" db:"severity"`
	ViolationIDs      []string  `json:"violation_ids" db:"violation_ids"`
	AdjustedAt        time.Time `json:"adjusted_at" db:"adjusted_at"`
}

// AutoAdjustConfig governs the per-tenant auto-adjust loop.
type AutoAdjustConfig struct {
	BreachWindowDays        int     `json:"breach_window_days" yaml:"breach_window_days"`
	BreachThresholdCount    int     `json:"breach_threshold_count" yaml:"breach_threshold_count"`
	TighteningPercent       float64 `json:"tightening_percent" yaml:"tightening_percent"`
	SeverityBasedAdjustment bool    `json:"severity_based_adjustment" yaml:"severity_based_adjustment"`
	// SeverityTightening maps severity name to tightening percent when
	// SeverityBasedAdjustment is on.
	SeverityTightening map[string]float64 `json:"severity_tightening,omitempty" yaml:"severity_tightening,omitempty"`
	NotifyOnViolation  bool               `json:"notify_on_violation" yaml:"notify_on_violation"`
	NotifyOnAdjustment bool               `json:"notify_on_adjustment" yaml:"notify_on_adjustment"`
}

// GuardrailRepo provides guardrail persistence.
type GuardrailRepo interface {
	// Insert adds a new guardrail
	Insert(ctx context.Context, g Guardrail) error

	// Get retrieves a guardrail by ID; nil without error when absent
	Get(ctx context.Context, id string) (*Guardrail, error)

	// Find locates the guardrail for a (decision, option, metric) key;
	// nil without error when absent
	Find(ctx context.Context, decisionID, optionID, metricName string) (*Guardrail, error)

	// UpdateThreshold moves the stored threshold (auto-adjust trail only)
	UpdateThreshold(ctx context.Context, id string, newThreshold float64, at time.Time) error

	// ListByDecision retrieves all guardrails of a decision
	ListByDecision(ctx context.Context, decisionID string) ([]Guardrail, error)
}

// ViolationRepo provides append-only breach record persistence.
type ViolationRepo interface {
	// Insert appends a new violation record
	Insert(ctx context.Context, v GuardrailViolation) error

	// ListSince returns a guardrail's violations at or after the cutoff,
	// oldest first
	ListSince(ctx context.Context, guardrailID string, since time.Time) ([]GuardrailViolation, error)

	// Resolve stamps ResolvedAt on a violation
	Resolve(ctx context.Context, id string, at time.Time) error
}

// AdjustmentRepo provides append-only threshold-change audit persistence.
type AdjustmentRepo interface {
	// Insert appends a new adjustment record
	Insert(ctx context.Context, rec AutoAdjustmentRecord) error

	// ListByGuardrail returns a guardrail's adjustment history, oldest first
	ListByGuardrail(ctx context.Context, guardrailID string) ([]AutoAdjustmentRecord, error)
}

// TenantConfigRepo provides per-tenant auto-adjust settings persistence.
type TenantConfigRepo interface {
	// GetAutoAdjust returns nil without error when the tenant has no
	// stored config; callers fall back to defaults
	GetAutoAdjust(ctx context.Context, tenantID string) (*AutoAdjustConfig, error)

	// UpsertAutoAdjust stores tenant settings
	UpsertAutoAdjust(ctx context.Context, tenantID string, cfg AutoAdjustConfig) error
}

// Store aggregates the repos the guardrail engine needs.
type Store interface {
	Guardrails() GuardrailRepo
	Violations() ViolationRepo
	Adjustments() AdjustmentRepo
	TenantConfigs() TenantConfigRepo
}

package persistence

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests and single-node runs.
// All repos share one mutex; copies go in and out, never aliases.
type MemoryStore struct {
	mu          sync.RWMutex
	guardrails  map[string]Guardrail
	violations  map[string]GuardrailViolation
	adjustments map[string][]AutoAdjustmentRecord // keyed by guardrail ID
	configs     map[string]AutoAdjustConfig       // keyed by tenant ID
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		guardrails:  make(map[string]Guardrail),
		violations:  make(map[string]GuardrailViolation),
		adjustments: make(map[string][]AutoAdjustmentRecord),
		configs:     make(map[string]AutoAdjustConfig),
	}
}

func (s *MemoryStore) Guardrails() GuardrailRepo       { return (*memGuardrails)(s) }
func (s *MemoryStore) Violations() ViolationRepo       { return (*memViolations)(s) }
func (s *MemoryStore) Adjustments() AdjustmentRepo     { return (*memAdjustments)(s) }
func (s *MemoryStore) TenantConfigs() TenantConfigRepo { return (*memConfigs)(s) }

type memGuardrails MemoryStore

func (r *memGuardrails) Insert(_ context.Context, g Guardrail) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.guardrails[g.ID] = g
	return nil
}

func (r *memGuardrails) Get(_ context.Context, id string) (*Guardrail, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.guardrails[id]
	if !ok {
		return nil, nil
	}
	return &g, nil
}

func (r *memGuardrails) Find(_ context.Context, decisionID, optionID, metricName string) (*Guardrail, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, g := range r.guardrails {
		if g.DecisionID == decisionID && g.OptionID == optionID && g.MetricName == metricName {
			match := g
			return &match, nil
		}
	}
	return nil, nil
}

func (r *memGuardrails) UpdateThreshold(_ context.Context, id string, newThreshold float64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.guardrails[id]
	if !ok {
		return ErrNotFound
	}
	g.ThresholdValue = newThreshold
	g.UpdatedAt = at
	r.guardrails[id] = g
	return nil
}

func (r *memGuardrails) ListByDecision(_ context.Context, decisionID string) ([]Guardrail, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Guardrail
	for _, g := range r.guardrails {
		if g.DecisionID == decisionID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

type memViolations MemoryStore

func (r *memViolations) Insert(_ context.Context, v GuardrailViolation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.violations[v.ID] = v
	return nil
}

func (r *memViolations) ListSince(_ context.Context, guardrailID string, since time.Time) ([]GuardrailViolation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []GuardrailViolation
	for _, v := range r.violations {
		if v.GuardrailID == guardrailID && !v.ViolatedAt.Before(since) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].ViolatedAt.Equal(out[b].ViolatedAt) {
			return out[a].ID < out[b].ID
		}
		return out[a].ViolatedAt.Before(out[b].ViolatedAt)
	})
	return out, nil
}

func (r *memViolations) Resolve(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.violations[id]
	if !ok {
		return ErrNotFound
	}
	resolved := at
	v.ResolvedAt = &resolved
	r.violations[id] = v
	return nil
}

type memAdjustments MemoryStore

func (r *memAdjustments) Insert(_ context.Context, rec AutoAdjustmentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adjustments[rec.GuardrailID] = append(r.adjustments[rec.GuardrailID], rec)
	return nil
}

func (r *memAdjustments) ListByGuardrail(_ context.Context, guardrailID string) ([]AutoAdjustmentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	recs := r.adjustments[guardrailID]
	out := make([]AutoAdjustmentRecord, len(recs))
	copy(out, recs)
	return out, nil
}

type memConfigs MemoryStore

func (r *memConfigs) GetAutoAdjust(_ context.Context, tenantID string) (*AutoAdjustConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[tenantID]
	if !ok {
		return nil, nil
	}
	return &cfg, nil
}

func (r *memConfigs) UpsertAutoAdjust(_ context.Context, tenantID string, cfg AutoAdjustConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[tenantID] = cfg
	return nil
}

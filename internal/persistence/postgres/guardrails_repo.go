package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/retinalabs/retina/internal/persistence"
)

// guardrailsRepo implements GuardrailRepo for PostgreSQL
type guardrailsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

const guardrailColumns = `id, tenant_id, decision_id, option_id, metric_name,
	direction, threshold_value, alert_level, created_at, updated_at`

// Insert adds a new guardrail
func (r *guardrailsRepo) Insert(ctx context.Context, g persistence.Guardrail) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO guardrails (id, tenant_id, decision_id, option_id, metric_name,
			direction, threshold_value, alert_level, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.ExecContext(ctx, query,
		g.ID, g.TenantID, g.DecisionID, g.OptionID, g.MetricName,
		g.Direction, g.ThresholdValue, g.AlertLevel, g.CreatedAt, g.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("duplicate guardrail for (%s, %s, %s): %w",
				g.DecisionID, g.OptionID, g.MetricName, err)
		}
		return fmt.Errorf("failed to insert guardrail: %w", err)
	}
	return nil
}

// Get retrieves a guardrail by ID; nil without error when absent
func (r *guardrailsRepo) Get(ctx context.Context, id string) (*persistence.Guardrail, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT ` + guardrailColumns + ` FROM guardrails WHERE id = $1`

	var g persistence.Guardrail
	if err := r.db.GetContext(ctx, &g, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get guardrail: %w", err)
	}
	return &g, nil
}

// Find locates the guardrail for a (decision, option, metric) key
func (r *guardrailsRepo) Find(ctx context.Context, decisionID, optionID, metricName string) (*persistence.Guardrail, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ` + guardrailColumns + `
		FROM guardrails
		WHERE decision_id = $1 AND option_id = $2 AND metric_name = $3`

	var g persistence.Guardrail
	if err := r.db.GetContext(ctx, &g, query, decisionID, optionID, metricName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find guardrail: %w", err)
	}
	return &g, nil
}

// UpdateThreshold moves the stored threshold
func (r *guardrailsRepo) UpdateThreshold(ctx context.Context, id string, newThreshold float64, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `UPDATE guardrails SET threshold_value = $2, updated_at = $3 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, newThreshold, at)
	if err != nil {
		return fmt.Errorf("failed to update threshold: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// ListByDecision retrieves all guardrails of a decision
func (r *guardrailsRepo) ListByDecision(ctx context.Context, decisionID string) ([]persistence.Guardrail, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ` + guardrailColumns + `
		FROM guardrails
		WHERE decision_id = $1
		ORDER BY id`

	var out []persistence.Guardrail
	if err := r.db.SelectContext(ctx, &out, query, decisionID); err != nil {
		return nil, fmt.Errorf("failed to list guardrails: %w", err)
	}
	return out, nil
}

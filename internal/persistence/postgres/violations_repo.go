package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/retinalabs/retina/internal/persistence"
)

// violationsRepo implements ViolationRepo for PostgreSQL
type violationsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// Insert appends a new violation record
func (r *violationsRepo) Insert(ctx context.Context, v persistence.GuardrailViolation) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO guardrail_violations (id, guardrail_id, actual_value,
			breach_percent, severity, source, violated_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		v.ID, v.GuardrailID, v.ActualValue, v.BreachPercent,
		v.Severity, v.Source, v.ViolatedAt, v.ResolvedAt)
	if err != nil {
		return fmt.Errorf("failed to insert violation: %w", err)
	}
	return nil
}

// ListSince returns a guardrail's violations at or after the cutoff, oldest first
func (r *violationsRepo) ListSince(ctx context.Context, guardrailID string, since time.Time) ([]persistence.GuardrailViolation, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, guardrail_id, actual_value, breach_percent, severity,
			source, violated_at, resolved_at
		FROM guardrail_violations
		WHERE guardrail_id = $1 AND violated_at >= $2
		ORDER BY violated_at ASC, id ASC`

	var out []persistence.GuardrailViolation
	if err := r.db.SelectContext(ctx, &out, query, guardrailID, since); err != nil {
		return nil, fmt.Errorf("failed to list violations: %w", err)
	}
	return out, nil
}

// Resolve stamps ResolvedAt on a violation
func (r *violationsRepo) Resolve(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `UPDATE guardrail_violations SET resolved_at = $2 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to resolve violation: %w", err)
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

// adjustmentsRepo implements AdjustmentRepo for PostgreSQL
type adjustmentsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// Insert appends a new adjustment record
func (r *adjustmentsRepo) Insert(ctx context.Context, rec persistence.AutoAdjustmentRecord) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO guardrail_adjustments (id, guardrail_id, old_threshold,
			new_threshold, adjustment_percent, severity, violation_ids, adjusted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.GuardrailID, rec.OldThreshold, rec.NewThreshold,
		rec.AdjustmentPercent, rec.Severity, pq.Array(rec.ViolationIDs), rec.AdjustedAt)
	if err != nil {
		return fmt.Errorf("failed to insert adjustment: %w", err)
	}
	return nil
}

// ListByGuardrail returns a guardrail's adjustment history, oldest first
func (r *adjustmentsRepo) ListByGuardrail(ctx context.Context, guardrailID string) ([]persistence.AutoAdjustmentRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, guardrail_id, old_threshold, new_threshold,
			adjustment_percent, severity, violation_ids, adjusted_at
		FROM guardrail_adjustments
		WHERE guardrail_id = $1
		ORDER BY adjusted_at ASC, id ASC`

	rows, err := r.db.QueryxContext(ctx, query, guardrailID)
	if err != nil {
		return nil, fmt.Errorf("failed to list adjustments: %w", err)
	}
	defer rows.Close()

	var out []persistence.AutoAdjustmentRecord
	for rows.Next() {
		var rec persistence.AutoAdjustmentRecord
		err := rows.Scan(&rec.ID, &rec.GuardrailID, &rec.OldThreshold,
			&rec.NewThreshold, &rec.AdjustmentPercent, &rec.Severity,
			pq.Array(&rec.ViolationIDs), &rec.AdjustedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan adjustment: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating adjustments: %w", err)
	}
	return out, nil
}

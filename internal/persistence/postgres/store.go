// Package postgres backs the persistence ports with PostgreSQL via sqlx.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver

	"github.com/retinalabs/retina/internal/persistence"
)

// defaultTimeout bounds individual queries when the caller's context has
// no tighter deadline.
const defaultTimeout = 5 * time.Second

// Store implements persistence.Store on a PostgreSQL database.
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
}

// Connect opens and pings a PostgreSQL connection.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Store{db: db, timeout: defaultTimeout}, nil
}

// NewStore wraps an existing connection, mainly for tests.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db, timeout: defaultTimeout}
}

func (s *Store) Guardrails() persistence.GuardrailRepo {
	return &guardrailsRepo{db: s.db, timeout: s.timeout}
}

func (s *Store) Violations() persistence.ViolationRepo {
	return &violationsRepo{db: s.db, timeout: s.timeout}
}

func (s *Store) Adjustments() persistence.AdjustmentRepo {
	return &adjustmentsRepo{db: s.db, timeout: s.timeout}
}

func (s *Store) TenantConfigs() persistence.TenantConfigRepo {
	return &tenantConfigRepo{db: s.db, timeout: s.timeout}
}

// HealthCheck verifies connectivity.
func (s *Store) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the guardrail tables when missing. Suitable for
// single-node deployments; larger installs run migrations out of band.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	schema := `
		CREATE TABLE IF NOT EXISTS guardrails (
			id              TEXT PRIMARY KEY,
			tenant_id       TEXT NOT NULL,
			decision_id     TEXT NOT NULL,
			option_id       TEXT NOT NULL,
			metric_name     TEXT NOT NULL,
			direction       TEXT NOT NULL,
			threshold_value DOUBLE PRECISION NOT NULL,
			alert_level     TEXT NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL,
			updated_at      TIMESTAMPTZ NOT NULL,
			UNIQUE (decision_id, option_id, metric_name)
		);
		CREATE TABLE IF NOT EXISTS guardrail_violations (
			id             TEXT PRIMARY KEY,
			guardrail_id   TEXT NOT NULL REFERENCES guardrails(id),
			actual_value   DOUBLE PRECISION NOT NULL,
			breach_percent DOUBLE PRECISION NOT NULL,
			severity       TEXT NOT NULL,
			source         TEXT NOT NULL DEFAULT '',
			violated_at    TIMESTAMPTZ NOT NULL,
			resolved_at    TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_violations_guardrail_ts
			ON guardrail_violations (guardrail_id, violated_at);
		CREATE TABLE IF NOT EXISTS guardrail_adjustments (
			id                 TEXT PRIMARY KEY,
			guardrail_id       TEXT NOT NULL REFERENCES guardrails(id),
			old_threshold      DOUBLE PRECISION NOT NULL,
			new_threshold      DOUBLE PRECISION NOT NULL,
			adjustment_percent DOUBLE PRECISION NOT NULL,
			severity           TEXT NOT NULL,
			violation_ids      TEXT[] NOT NULL,
			adjusted_at        TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS tenant_auto_adjust (
			tenant_id TEXT PRIMARY KEY,
			config    JSONB NOT NULL
		);`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

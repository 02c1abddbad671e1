package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/retinalabs/retina/internal/persistence"
)

// tenantConfigRepo implements TenantConfigRepo for PostgreSQL. Config
// lives as a JSONB blob keyed by tenant.
type tenantConfigRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// GetAutoAdjust returns nil without error when the tenant has no stored config
func (r *tenantConfigRepo) GetAutoAdjust(ctx context.Context, tenantID string) (*persistence.AutoAdjustConfig, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT config FROM tenant_auto_adjust WHERE tenant_id = $1`

	var raw []byte
	if err := r.db.QueryRowxContext(ctx, query, tenantID).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get tenant config: %w", err)
	}

	var cfg persistence.AutoAdjustConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tenant config: %w", err)
	}
	return &cfg, nil
}

// UpsertAutoAdjust stores tenant settings
func (r *tenantConfigRepo) UpsertAutoAdjust(ctx context.Context, tenantID string, cfg persistence.AutoAdjustConfig) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal tenant config: %w", err)
	}

	query := `
		INSERT INTO tenant_auto_adjust (tenant_id, config)
		VALUES ($1, $2)
		ON CONFLICT (tenant_id) DO UPDATE SET config = EXCLUDED.config`

	if _, err := r.db.ExecContext(ctx, query, tenantID, raw); err != nil {
		return fmt.Errorf("failed to upsert tenant config: %w", err)
	}
	return nil
}

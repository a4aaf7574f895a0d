package postgres

import (
	"context"
	"fmt"
)

// schemaProbe fails until Migrate has created the wallet tables.
const schemaProbe = `SELECT 1 FROM wallets LIMIT 0`

// HealthCheck reports PostgreSQL as healthy once the wallet schema is reachable.
type HealthCheck struct {
	pool Pool
}

func NewHealthCheck(pool Pool) *HealthCheck {
	return &HealthCheck{pool: pool}
}

func (h *HealthCheck) Ping(ctx context.Context) error {
	if _, err := h.pool.Exec(ctx, schemaProbe); err != nil {
		return fmt.Errorf("probing wallets table: %w", err)
	}
	return nil
}

func (h *HealthCheck) Name() string {
	return "postgresql"
}

package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"valutatrade/internal/core/domain"
)

// ActionRepo implements ports.ActionLogRepository.
type ActionRepo struct {
	pool Pool
}

// NewActionRepo creates a PostgreSQL-backed action log.
func NewActionRepo(pool Pool) *ActionRepo {
	return &ActionRepo{pool: pool}
}

// Create inserts one action record with its payload as JSONB.
func (r *ActionRepo) Create(ctx context.Context, rec *domain.ActionRecord) error {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("marshal action payload: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO action_log (id, action, user_id, payload, created_at) VALUES ($1, $2, $3, $4, $5)`,
		rec.ID, rec.Kind, rec.Payload.UserID, payload, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert action: %w", err)
	}
	return nil
}

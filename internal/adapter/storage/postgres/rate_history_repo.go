package postgres

import (
	"context"
	"fmt"

	"valutatrade/internal/core/domain"

	"github.com/shopspring/decimal"
)

// RateHistoryRepo implements ports.RateHistoryRepository.
type RateHistoryRepo struct {
	pool Pool
}

// NewRateHistoryRepo creates a new RateHistoryRepo.
func NewRateHistoryRepo(pool Pool) *RateHistoryRepo {
	return &RateHistoryRepo{pool: pool}
}

// Append inserts records; a record whose ID already exists is skipped.
func (r *RateHistoryRepo) Append(ctx context.Context, records []domain.RateHistoryRecord) error {
	query := `INSERT INTO rate_history (id, from_currency, to_currency, rate, source, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (id) DO NOTHING`

	for _, rec := range records {
		if _, err := r.pool.Exec(ctx, query, rec.ID, rec.From, rec.To, rec.Value, rec.Source, rec.FetchedAt); err != nil {
			return fmt.Errorf("insert rate history %s: %w", rec.ID, err)
		}
	}
	return nil
}

// ListByCurrency returns the newest records for from, newest first.
func (r *RateHistoryRepo) ListByCurrency(ctx context.Context, from domain.CurrencyCode, limit int) ([]domain.RateHistoryRecord, error) {
	query := `SELECT id, from_currency, to_currency, rate::text, source, fetched_at
		FROM rate_history WHERE from_currency = $1
		ORDER BY fetched_at DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, from, limit)
	if err != nil {
		return nil, fmt.Errorf("query rate history: %w", err)
	}
	defer rows.Close()

	var out []domain.RateHistoryRecord
	for rows.Next() {
		var (
			rec   domain.RateHistoryRecord
			value string
		)
		if err := rows.Scan(&rec.ID, &rec.From, &rec.To, &value, &rec.Source, &rec.FetchedAt); err != nil {
			return nil, fmt.Errorf("scan rate history: %w", err)
		}
		if rec.Value, err = decimal.NewFromString(value); err != nil {
			return nil, fmt.Errorf("parse rate %s: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rate history: %w", err)
	}
	return out, nil
}

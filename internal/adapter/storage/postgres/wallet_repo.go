package postgres

import (
	"context"
	"errors"
	"fmt"

	"valutatrade/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// lockNotAvailable is raised when lock_timeout expires.
const lockNotAvailable = "55P03"

// WalletRepo implements ports.WalletRepository over the wallets and
// wallet_holdings tables. Numeric columns are read as text to keep full precision.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

// Create inserts a new wallet and its holdings.
func (r *WalletRepo) Create(ctx context.Context, tx pgx.Tx, w *domain.Wallet) error {
	q := querier(r.pool, tx)
	query := `INSERT INTO wallets (user_id, base_currency, base_cash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`

	if _, err := q.Exec(ctx, query, w.UserID, w.BaseCurrency, w.BaseCash, w.CreatedAt, w.UpdatedAt); err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	return r.saveHoldings(ctx, q, w)
}

// GetByUserID fetches a wallet and its holdings (non-locking read).
func (r *WalletRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT user_id, base_currency, base_cash::text, created_at, updated_at
		FROM wallets WHERE user_id = $1`

	w, err := r.load(ctx, r.pool, query, userID)
	if err != nil {
		return nil, fmt.Errorf("get wallet by user id: %w", err)
	}
	return w, nil
}

// GetByUserIDForUpdate fetches a wallet with pessimistic locking.
// This MUST be called within a transaction.
func (r *WalletRepo) GetByUserIDForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT user_id, base_currency, base_cash::text, created_at, updated_at
		FROM wallets WHERE user_id = $1 FOR UPDATE`

	w, err := r.load(ctx, tx, query, userID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == lockNotAvailable {
			return nil, fmt.Errorf("get wallet for update: %w", domain.ErrWalletLockTimeout)
		}
		return nil, fmt.Errorf("get wallet for update: %w", err)
	}
	return w, nil
}

// Save writes the cash balance and upserts every holding within a transaction.
func (r *WalletRepo) Save(ctx context.Context, tx pgx.Tx, w *domain.Wallet) error {
	q := querier(r.pool, tx)
	query := `UPDATE wallets SET base_cash = $1, updated_at = NOW() WHERE user_id = $2`

	tag, err := q.Exec(ctx, query, w.BaseCash, w.UserID)
	if err != nil {
		return fmt.Errorf("update wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %s", w.UserID)
	}
	return r.saveHoldings(ctx, q, w)
}

func (r *WalletRepo) saveHoldings(ctx context.Context, q Querier, w *domain.Wallet) error {
	query := `INSERT INTO wallet_holdings (user_id, currency, amount) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, currency) DO UPDATE SET amount = EXCLUDED.amount`

	for _, code := range w.HoldingCodes() {
		if _, err := q.Exec(ctx, query, w.UserID, code, w.Holdings[code]); err != nil {
			return fmt.Errorf("upsert holding %s: %w", code, err)
		}
	}
	return nil
}

func (r *WalletRepo) load(ctx context.Context, q Querier, query string, userID uuid.UUID) (*domain.Wallet, error) {
	w := &domain.Wallet{Holdings: make(map[domain.CurrencyCode]decimal.Decimal)}
	var cash string
	err := q.QueryRow(ctx, query, userID).Scan(&w.UserID, &w.BaseCurrency, &cash, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if w.BaseCash, err = decimal.NewFromString(cash); err != nil {
		return nil, fmt.Errorf("parse base_cash: %w", err)
	}

	rows, err := q.Query(ctx, `SELECT currency, amount::text FROM wallet_holdings WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("query holdings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			code   domain.CurrencyCode
			amount string
		)
		if err := rows.Scan(&code, &amount); err != nil {
			return nil, fmt.Errorf("scan holding: %w", err)
		}
		v, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("parse holding %s: %w", code, err)
		}
		w.Holdings[code] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate holdings: %w", err)
	}
	return w, nil
}

//go:generate mockgen -source=repositories.go -destination=mocks/mock_repositories.go -package=mocks

package ports

import (
	"context"

	"valutatrade/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, tx pgx.Tx, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
}

// WalletRepository defines persistence operations for wallets.
// Methods accepting pgx.Tx are used inside transaction blocks for pessimistic locking.
type WalletRepository interface {
	Create(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet) error
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
	GetByUserIDForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.Wallet, error)
	// Save writes the cash balance and every holding of wallet.
	Save(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet) error
}

// RateSnapshotStore persists the last known rate per currency so the cache
// survives restarts.
type RateSnapshotStore interface {
	Load(ctx context.Context) ([]domain.Rate, error)
	Save(ctx context.Context, rates []domain.Rate) error
}

// RateHistoryRepository is the append-only log of fetched rates.
type RateHistoryRepository interface {
	Append(ctx context.Context, records []domain.RateHistoryRecord) error
	ListByCurrency(ctx context.Context, from domain.CurrencyCode, limit int) ([]domain.RateHistoryRecord, error)
}

// ActionLogRepository persists user action records.
type ActionLogRepository interface {
	Create(ctx context.Context, record *domain.ActionRecord) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

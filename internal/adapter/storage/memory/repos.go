package memory

import (
	"context"
	"fmt"
	"sort"

	"valutatrade/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// --- Users ---

// UserRepo implements ports.UserRepository.
type UserRepo struct {
	store *Store
}

// NewUserRepo creates a UserRepo over store.
func NewUserRepo(store *Store) *UserRepo {
	return &UserRepo{store: store}
}

// Create inserts u. Usernames are unique.
func (r *UserRepo) Create(ctx context.Context, tx pgx.Tx, u *domain.User) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Username == u.Username {
			return domain.ErrUsernameTaken
		}
	}
	cp := *u
	s.users[u.ID] = &cp

	if mt := asTx(tx); mt != nil {
		mt.onRollback(func() {
			s.mu.Lock()
			delete(s.users, u.ID)
			s.mu.Unlock()
		})
	}
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	u, ok := r.store.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, u := range r.store.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

// --- Wallets ---

// WalletRepo implements ports.WalletRepository. Wallets are stored as
// private copies; callers never share a *Wallet with the store.
type WalletRepo struct {
	store *Store
}

// NewWalletRepo creates a WalletRepo over store.
func NewWalletRepo(store *Store) *WalletRepo {
	return &WalletRepo{store: store}
}

func (r *WalletRepo) Create(ctx context.Context, tx pgx.Tx, w *domain.Wallet) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.wallets[w.UserID]; ok {
		return fmt.Errorf("wallet already exists: %s", w.UserID)
	}
	s.wallets[w.UserID] = w.Clone()

	if mt := asTx(tx); mt != nil {
		mt.onRollback(func() {
			s.mu.Lock()
			delete(s.wallets, w.UserID)
			s.mu.Unlock()
		})
	}
	return nil
}

func (r *WalletRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	w, ok := r.store.wallets[userID]
	if !ok {
		return nil, nil
	}
	return w.Clone(), nil
}

// GetByUserIDForUpdate takes the wallet's row lock for the lifetime of tx.
func (r *WalletRepo) GetByUserIDForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.Wallet, error) {
	mt := asTx(tx)
	if mt == nil {
		return nil, fmt.Errorf("memory wallet lock requires a memory transaction, got %T", tx)
	}
	if err := mt.lockWallet(ctx, userID); err != nil {
		return nil, fmt.Errorf("lock wallet %s: %w", userID, err)
	}
	return r.GetByUserID(ctx, userID)
}

func (r *WalletRepo) Save(ctx context.Context, tx pgx.Tx, w *domain.Wallet) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.wallets[w.UserID]
	if !ok {
		return fmt.Errorf("wallet not found: %s", w.UserID)
	}
	saved := w.Clone()
	saved.UpdatedAt = s.now()
	s.wallets[w.UserID] = saved

	if mt := asTx(tx); mt != nil {
		mt.onRollback(func() {
			s.mu.Lock()
			s.wallets[w.UserID] = prev
			s.mu.Unlock()
		})
	}
	return nil
}

// --- Rate history ---

// RateHistoryRepo implements ports.RateHistoryRepository.
type RateHistoryRepo struct {
	store *Store
}

// NewRateHistoryRepo creates a RateHistoryRepo over store.
func NewRateHistoryRepo(store *Store) *RateHistoryRepo {
	return &RateHistoryRepo{store: store}
}

// Append adds records, skipping IDs already stored.
func (r *RateHistoryRepo) Append(ctx context.Context, records []domain.RateHistoryRecord) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		if _, dup := s.seen[rec.ID]; dup {
			continue
		}
		s.seen[rec.ID] = struct{}{}
		s.history[rec.From] = append(s.history[rec.From], rec)
	}
	return nil
}

// ListByCurrency returns up to limit records for from, newest first.
func (r *RateHistoryRepo) ListByCurrency(ctx context.Context, from domain.CurrencyCode, limit int) ([]domain.RateHistoryRecord, error) {
	r.store.mu.RLock()
	out := append([]domain.RateHistoryRecord(nil), r.store.history[from]...)
	r.store.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].FetchedAt.After(out[j].FetchedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- Action log ---

// ActionRepo implements ports.ActionLogRepository.
type ActionRepo struct {
	store *Store
}

// NewActionRepo creates an ActionRepo over store.
func NewActionRepo(store *Store) *ActionRepo {
	return &ActionRepo{store: store}
}

func (r *ActionRepo) Create(ctx context.Context, rec *domain.ActionRecord) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.actions = append(r.store.actions, *rec)
	return nil
}

// List returns every recorded action in insertion order.
func (r *ActionRepo) List() []domain.ActionRecord {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return append([]domain.ActionRecord(nil), r.store.actions...)
}

// --- Rate snapshot ---

// RateSnapshotStore implements ports.RateSnapshotStore.
type RateSnapshotStore struct {
	store *Store
}

// NewRateSnapshotStore creates a RateSnapshotStore over store.
func NewRateSnapshotStore(store *Store) *RateSnapshotStore {
	return &RateSnapshotStore{store: store}
}

func (r *RateSnapshotStore) Load(ctx context.Context) ([]domain.Rate, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]domain.Rate, 0, len(r.store.rates))
	for _, rate := range r.store.rates {
		out = append(out, rate)
	}
	return out, nil
}

// Save replaces the whole snapshot.
func (r *RateSnapshotStore) Save(ctx context.Context, rates []domain.Rate) error {
	next := make(map[domain.CurrencyCode]domain.Rate, len(rates))
	for _, rate := range rates {
		next[rate.From] = rate
	}
	r.store.mu.Lock()
	r.store.rates = next
	r.store.mu.Unlock()
	return nil
}

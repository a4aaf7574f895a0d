// Package memory is the process-local storage driver. It backs every
// repository port with maps so the service runs without PostgreSQL or Redis.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"valutatrade/internal/core/domain"

	"github.com/google/uuid"
)

// Store holds all in-memory state shared by the repositories.
type Store struct {
	mu      sync.RWMutex
	users   map[uuid.UUID]*domain.User
	wallets map[uuid.UUID]*domain.Wallet
	history map[domain.CurrencyCode][]domain.RateHistoryRecord
	seen    map[string]struct{}
	actions []domain.ActionRecord
	rates   map[domain.CurrencyCode]domain.Rate
	now     func() time.Time

	locksMu sync.Mutex
	locks   map[uuid.UUID]chan struct{}
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		users:   make(map[uuid.UUID]*domain.User),
		wallets: make(map[uuid.UUID]*domain.Wallet),
		history: make(map[domain.CurrencyCode][]domain.RateHistoryRecord),
		seen:    make(map[string]struct{}),
		rates:   make(map[domain.CurrencyCode]domain.Rate),
		now:     func() time.Time { return time.Now().UTC() },
		locks:   make(map[uuid.UUID]chan struct{}),
	}
}

func (s *Store) rowLock(id uuid.UUID) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	ch, ok := s.locks[id]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[id] = ch
	}
	return ch
}

// lockRow blocks until the wallet row of id is free or ctx is done.
func (s *Store) lockRow(ctx context.Context, id uuid.UUID) error {
	select {
	case s.rowLock(id) <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", domain.ErrWalletLockTimeout, ctx.Err())
	}
}

func (s *Store) unlockRow(id uuid.UUID) {
	<-s.rowLock(id)
}

// Ping implements ports.HealthChecker.
func (s *Store) Ping(context.Context) error { return nil }

// Name implements ports.HealthChecker.
func (s *Store) Name() string { return "memory" }

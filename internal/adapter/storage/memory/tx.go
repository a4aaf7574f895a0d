package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var errSQLUnsupported = errors.New("memory storage: SQL is not supported")

// Transactor implements ports.DBTransactor for the in-memory store.
type Transactor struct {
	store *Store
}

// NewTransactor creates a Transactor over store.
func NewTransactor(store *Store) *Transactor {
	return &Transactor{store: store}
}

// Begin starts a transaction. Writes apply immediately and are undone on Rollback;
// wallet row locks are held until Commit or Rollback.
func (t *Transactor) Begin(ctx context.Context) (pgx.Tx, error) {
	return &Tx{store: t.store, held: make(map[uuid.UUID]struct{})}, nil
}

// Tx is the pgx.Tx handed out by Transactor. Only Commit and Rollback are meaningful.
type Tx struct {
	store *Store

	mu     sync.Mutex
	held   map[uuid.UUID]struct{}
	undo   []func()
	closed bool
}

// onRollback registers fn to run if the transaction is rolled back.
func (t *Tx) onRollback(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.undo = append(t.undo, fn)
}

// lockWallet acquires the row lock for userID once per transaction.
func (t *Tx) lockWallet(ctx context.Context, userID uuid.UUID) error {
	t.mu.Lock()
	_, ok := t.held[userID]
	t.mu.Unlock()
	if ok {
		return nil
	}

	if err := t.store.lockRow(ctx, userID); err != nil {
		return err
	}

	t.mu.Lock()
	t.held[userID] = struct{}{}
	t.mu.Unlock()
	return nil
}

func (t *Tx) finish(commit bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.closed = true

	if !commit {
		for i := len(t.undo) - 1; i >= 0; i-- {
			t.undo[i]()
		}
	}
	t.undo = nil
	for id := range t.held {
		t.store.unlockRow(id)
	}
	t.held = nil
	return nil
}

func (t *Tx) Commit(ctx context.Context) error   { return t.finish(true) }
func (t *Tx) Rollback(ctx context.Context) error { return t.finish(false) }

func (t *Tx) Begin(ctx context.Context) (pgx.Tx, error) { return nil, errSQLUnsupported }
func (t *Tx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, errSQLUnsupported
}
func (t *Tx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *Tx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *Tx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, errSQLUnsupported
}
func (t *Tx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errSQLUnsupported
}
func (t *Tx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errSQLUnsupported
}
func (t *Tx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (t *Tx) Conn() *pgx.Conn                                               { return nil }

// asTx returns the memory transaction behind tx, or nil.
func asTx(tx pgx.Tx) *Tx {
	if mt, ok := tx.(*Tx); ok {
		return mt
	}
	return nil
}

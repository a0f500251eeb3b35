package rotation

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/navimedi/credrotate/internal/platform/db"
)

// UnitOfWork is the atomic transaction boundary every mutating path runs in.
// Alternate relational backends can satisfy the same contract.
type UnitOfWork interface {
	// Store returns a store for reads outside any transaction.
	Store() Store
	// InTx runs fn against a transaction-bound store. If fn returns an
	// error the transaction is rolled back and nothing fn did survives.
	InTx(ctx context.Context, fn func(Store) error) error
}

// PGUnitOfWork implements UnitOfWork over a pgx pool.
type PGUnitOfWork struct {
	pool *pgxpool.Pool
}

// NewPGUnitOfWork constructs a PGUnitOfWork.
func NewPGUnitOfWork(pool *pgxpool.Pool) *PGUnitOfWork {
	return &PGUnitOfWork{pool: pool}
}

// Store returns a pool-backed store.
func (u *PGUnitOfWork) Store() Store {
	return NewPGStore(u.pool)
}

// InTx wraps fn in a single database transaction.
func (u *PGUnitOfWork) InTx(ctx context.Context, fn func(Store) error) error {
	return db.WithTx(ctx, u.pool, func(tx pgx.Tx) error {
		return fn(NewPGStore(tx))
	})
}

var _ UnitOfWork = (*PGUnitOfWork)(nil)

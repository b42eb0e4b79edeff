package storage

import (
	"context"
	"database/sql"
	"fmt"

	"paperloom/internal/ports"
)

// UnitOfWork opens SQLite transactions scoping one ingestion run each.
type UnitOfWork struct {
	db *sql.DB
}

var _ ports.UnitOfWork = (*UnitOfWork)(nil)

// NewUnitOfWork wraps an open database handle.
func NewUnitOfWork(db *sql.DB) *UnitOfWork {
	return &UnitOfWork{db: db}
}

// Begin starts a transaction and binds a repository to it.
func (u *UnitOfWork) Begin(ctx context.Context) (ports.Tx, error) {
	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Tx{tx: tx, papers: NewPaperRepository(tx)}, nil
}

// Tx is one open transaction. Rollback after a successful Commit is a
// no-op, so callers can unconditionally defer it.
type Tx struct {
	tx        *sql.Tx
	papers    *PaperRepository
	committed bool
}

var _ ports.Tx = (*Tx)(nil)

// Papers returns the repository bound to this transaction.
func (t *Tx) Papers() ports.PaperRepository {
	return t.papers
}

// Commit makes the transaction's writes durable.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	t.committed = true
	return nil
}

// Rollback discards the transaction's writes unless it already committed.
func (t *Tx) Rollback() error {
	if t.committed {
		return nil
	}
	if err := t.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return fmt.Errorf("rollback transaction: %w", err)
	}
	return nil
}

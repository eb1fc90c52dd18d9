package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
)

type txKey struct{}

// Tx is a transaction handle. Handles that joined an outer transaction do
// not end it: their Commit and Rollback are no-ops.
type Tx interface {
	Querier
	IsOpen() bool
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Transaction is a transaction begun by GetTx and owned by its caller.
type Transaction struct {
	*sqlx.Tx
	logger ectologger.Logger
	ended  bool
}

func (t *Transaction) IsOpen() bool { return !t.ended }

func (t *Transaction) Commit(ctx context.Context) error {
	if t.ended {
		return nil
	}
	t.ended = true
	if err := t.Tx.Commit(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Error("Failed to commit transaction")
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback is safe to defer after Commit.
func (t *Transaction) Rollback(ctx context.Context) error {
	if t.ended {
		return nil
	}
	t.ended = true
	if err := t.Tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		t.logger.WithContext(ctx).WithError(err).Error("Failed to roll back transaction")
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	return nil
}

// joinedTx shares the statements of the outer transaction.
type joinedTx struct {
	*Transaction
}

func (joinedTx) Commit(context.Context) error   { return nil }
func (joinedTx) Rollback(context.Context) error { return nil }

// GetTx joins the open transaction carried by ctx, or begins a new one and
// returns a ctx carrying it.
func GetTx(ctx context.Context, logger ectologger.Logger, db DB, opts *sql.TxOptions) (context.Context, Tx, error) {
	if outer, ok := openTx(ctx); ok {
		return ctx, joinedTx{outer}, nil
	}

	tx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Error("Failed to begin transaction")
		return ctx, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	owned := &Transaction{Tx: tx, logger: logger}
	return context.WithValue(ctx, txKey{}, owned), owned, nil
}

func openTx(ctx context.Context) (*Transaction, bool) {
	tx, ok := ctx.Value(txKey{}).(*Transaction)
	if !ok || tx == nil || !tx.IsOpen() {
		return nil, false
	}
	return tx, true
}

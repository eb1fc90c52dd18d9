package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/lib/pq"
)

// ErrRetriesExhausted wraps the last transient error once RunInTx gives up.
var ErrRetriesExhausted = errors.New("transaction retries exhausted")

const (
	codeSerializationFailure pq.ErrorCode = "40001"
	codeDeadlockDetected     pq.ErrorCode = "40P01"
	codeLockNotAvailable     pq.ErrorCode = "55P03"
	codeUniqueViolation      pq.ErrorCode = "23505"
)

// IsTransient reports whether err is a lock or serialization conflict that may
// succeed when the transaction is replayed. Unique violations count because two
// writers racing on the same identity key resolve to a find on replay.
func IsTransient(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable, codeUniqueViolation:
		return true
	}
	return false
}

type RetryConfig struct {
	Attempts int
	Backoff  time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{Attempts: 3, Backoff: 50 * time.Millisecond}
}

// RunInTx runs fn inside a transaction and commits it. Transient failures roll
// back and replay fn up to cfg.Attempts times. When ctx already carries an open
// transaction fn joins it and is run exactly once.
func RunInTx(ctx context.Context, db DB, cfg RetryConfig, fn func(ctx context.Context) error) error {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 1
	}

	var lastErr error
	backoff := cfg.Backoff
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		lastErr = runOnce(ctx, db, fn)
		if lastErr == nil {
			return nil
		}
		if _, nested := openTx(ctx); nested || !IsTransient(lastErr) {
			return lastErr
		}
		if attempt == cfg.Attempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return errors.Join(ErrRetriesExhausted, lastErr)
}

func runOnce(ctx context.Context, db DB, fn func(ctx context.Context) error) error {
	txCtx, tx, err := db.GetTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(txCtx)

	if err := fn(txCtx); err != nil {
		return err
	}
	return tx.Commit(txCtx)
}

// QueryError maps a failed statement onto the error returned by repositories:
// transient conflicts keep the driver error so RunInTx can replay, anything
// else becomes an opaque 500.
func QueryError(err error, message string) error {
	if IsTransient(err) {
		return fmt.Errorf("%s: %w", message, err)
	}
	return httperror.NewHTTPError(http.StatusInternalServerError, message)
}

// Transactor binds RunInTx to one database and retry policy.
type Transactor struct {
	db  DB
	cfg RetryConfig
}

func NewTransactor(db DB, cfg RetryConfig) *Transactor {
	return &Transactor{db: db, cfg: cfg}
}

func (t *Transactor) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return RunInTx(ctx, t.db, t.cfg, fn)
}

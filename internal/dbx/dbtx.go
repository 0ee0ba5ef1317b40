// Package dbx holds the database plumbing shared by the account store and
// the client's session store: DBTX, implemented by both *sql.DB and
// *sql.Tx, and WithTx, which runs a unit of work in a transaction.
package dbx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/multiplycharity/multiply-monorepo/internal/logging"
)

// DBTX is the subset of database/sql the repositories use.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ErrTxAborted marks a unit of work that did not commit. Nothing it wrote
// is visible. The cause stays in the chain for errors.Is.
var ErrTxAborted = errors.New("transaction aborted")

type txConfig struct {
	name   string
	opts   sql.TxOptions
	logger logging.Logger
}

type TxOption func(*txConfig)

// Named labels the unit of work in errors and logs.
func Named(name string) TxOption { return func(c *txConfig) { c.name = name } }

// ReadOnly asks the driver for a read-only transaction.
func ReadOnly() TxOption { return func(c *txConfig) { c.opts.ReadOnly = true } }

// Logged reports rollback failures to l; they are otherwise only joined
// into the returned error.
func Logged(l logging.Logger) TxOption { return func(c *txConfig) { c.logger = l } }

// WithTx begins a transaction, runs fn against it and commits. When fn fails
// or panics the transaction is rolled back; panics are rethrown. Failures of
// fn and of Commit come back wrapped in ErrTxAborted.
//
//	err := dbx.WithTx(ctx, db, func(ctx context.Context, tx dbx.DBTX) error {
//	    return metadata.SaveSession(ctx, metadata.NewSQLiteRepository(tx), rec)
//	}, dbx.Named("save session"))
func WithTx(ctx context.Context, db *sql.DB, fn func(ctx context.Context, tx DBTX) error, opts ...TxOption) (err error) {
	cfg := txConfig{name: "tx", logger: logging.Nop()}
	for _, o := range opts {
		o(&cfg)
	}

	tx, err := db.BeginTx(ctx, &cfg.opts)
	if err != nil {
		return fmt.Errorf("begin %s: %w", cfg.name, err)
	}

	defer func() {
		if p := recover(); p != nil {
			cfg.rollback(ctx, tx)
			panic(p)
		}
		if err != nil {
			if rbErr := cfg.rollback(ctx, tx); rbErr != nil {
				err = errors.Join(err, rbErr)
			}
			err = fmt.Errorf("%w: %s: %w", ErrTxAborted, cfg.name, err)
			return
		}
		if cErr := tx.Commit(); cErr != nil {
			err = fmt.Errorf("%w: commit %s: %w", ErrTxAborted, cfg.name, cErr)
		}
	}()

	return fn(ctx, tx)
}

func (c txConfig) rollback(ctx context.Context, tx *sql.Tx) error {
	err := tx.Rollback()
	if err == nil || errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	c.logger.Error(ctx, "rollback failed", "tx", c.name, "error", err)
	return fmt.Errorf("rollback %s: %w", c.name, err)
}

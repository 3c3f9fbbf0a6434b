package database

import (
	"context"
	"database/sql"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

type txContextKey struct{}

// Tx is a transaction that may be shared by several repositories in one unit of work.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Transaction wraps sqlx.Tx. A transaction found on the context is joined rather than
// nested; only the handle that began it may end it.
type Transaction struct {
	*sqlx.Tx
	logger ectologger.Logger
	joined bool
	done   bool
}

// GetTx joins the transaction carried by ctx, or begins one and stores it on the returned context.
func GetTx(ctx context.Context, logger ectologger.Logger, db DB, opts *sql.TxOptions) (context.Context, Tx, error) {
	if outer, ok := ctx.Value(txContextKey{}).(*Transaction); ok && !outer.done {
		return ctx, &Transaction{Tx: outer.Tx, logger: logger, joined: true}, nil
	}

	sqlTx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Error("failed to begin transaction")
		return ctx, nil, errors.Wrap(err, "begin transaction")
	}

	tx := &Transaction{Tx: sqlTx, logger: logger}
	return context.WithValue(ctx, txContextKey{}, tx), tx, nil
}

func (t *Transaction) Commit(ctx context.Context) error {
	return t.end(ctx, "commit", t.Tx.Commit)
}

// Rollback is safe to defer after Commit.
func (t *Transaction) Rollback(ctx context.Context) error {
	return t.end(ctx, "rollback", t.Tx.Rollback)
}

func (t *Transaction) end(ctx context.Context, op string, fn func() error) error {
	if t.joined || t.done {
		return nil
	}
	t.done = true

	if err := fn(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Errorf("failed to %s transaction", op)
		return errors.Wrapf(err, "%s transaction", op)
	}
	return nil
}

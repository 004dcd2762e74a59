package dbpkg

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog"
)

type txKey struct{}

// WithTx returns a copy of ctx carrying tx.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFromContext returns the transaction carried by ctx, if any.
func TxFromContext(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sql.Tx)
	return tx, ok
}

// Conn returns the transaction carried by ctx or fallback when there is none.
func Conn(ctx context.Context, fallback SQLInterface) SQLInterface {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}

	return fallback
}

// RunInTx executes fn inside a database transaction.
//
// The transaction is committed when fn returns nil and rolled back otherwise. If ctx
// already carries a transaction, fn joins it. Statements in setup run first inside the
// new transaction, e.g. SET LOCAL lock_timeout.
func RunInTx(ctx context.Context, db *sql.DB, fn func(ctx context.Context) error, setup ...string) error {
	if _, ok := TxFromContext(ctx); ok {
		return fn(ctx)
	}

	l := zerolog.Ctx(ctx)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			l.Error().Err(err).Send()
		}
	}()

	for _, stmt := range setup {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	if err := fn(WithTx(ctx, tx)); err != nil {
		return err
	}

	return tx.Commit()
}

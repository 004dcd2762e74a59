package dbpkg

import (
	"context"
	"database/sql"
)

// SQLInterface provides neccessary db methods to perform queries.
//
// Both *sql.DB and *sql.Tx satisfy it, so repositories run unchanged inside a transaction.
type SQLInterface interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	PrepareContext(context.Context, string) (*sql.Stmt, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

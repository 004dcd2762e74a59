// Package dbpkg provides helpers to make db initialization, transactions and testing easier.
package dbpkg

import (
	"database/sql"
)

// Setup sets up connection with database.
func Setup(driver, source string) (*sql.DB, error) {
	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, err
	}

	if err = db.Ping(); err != nil {
		return nil, err
	}

	return db, nil
}
